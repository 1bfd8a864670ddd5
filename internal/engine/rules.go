package engine

type Role string

const (
	RoleMerlin       Role = "merlin"
	RolePercival     Role = "percival"
	RoleLoyalServant Role = "loyal_servant"
	RoleMorgana      Role = "morgana"
	RoleAssassin     Role = "assassin"
	RoleMordred      Role = "mordred"
	RoleOberon       Role = "oberon"
	RoleMinion       Role = "minion"
)

var loyalRoles = map[Role]bool{
	RoleMerlin:       true,
	RolePercival:     true,
	RoleLoyalServant: true,
}

var knownRoles = map[Role]bool{
	RoleMerlin:       true,
	RolePercival:     true,
	RoleLoyalServant: true,
	RoleMorgana:      true,
	RoleAssassin:     true,
	RoleMordred:      true,
	RoleOberon:       true,
	RoleMinion:       true,
}

func (r Role) Valid() bool { return knownRoles[r] }

// Loyal reports whether r belongs to the loyal alignment.
func (r Role) Loyal() bool { return loyalRoles[r] }

func nextLeader(leader, seats int) int {
	return (leader + 1) % seats
}
