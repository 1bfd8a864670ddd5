package engine

import "slices"

// NewGame seats len(roles) players, roles[i] belonging to seat i, and opens
// round 0 of mission 0 with leader at the head of the table.
func NewGame(roles []Role, maxRounds, leader int) (State, []Event, error) {
	if len(roles) == 0 || maxRounds < 1 || leader < 0 || leader >= len(roles) {
		return State{}, nil, ErrInvalidSetup
	}
	for _, r := range roles {
		if !r.Valid() {
			return State{}, nil, ErrInvalidSetup
		}
	}

	s := State{
		Phase:         PhaseAwaitingProposal,
		Roles:         slices.Clone(roles),
		MaxRounds:     maxRounds,
		Leader:        leader,
		AllowProposal: true,
		ApprovalVotes: make([]Approval, len(roles)),
		MissionVotes:  make([]MissionVote, len(roles)),
		LadyTarget:    leader,
	}
	events := []Event{{Type: EvtRoundStarted, Leader: leader}}
	return s, events, nil
}

// IsLoyal reports the alignment of the role sitting at seat.
func IsLoyal(s State, seat int) bool {
	if !validSeat(s, seat) {
		return false
	}
	return s.Roles[seat].Loyal()
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// History is what an observer of the event stream can know about a game.
type History struct {
	LastSeq        int
	Mission        int
	Round          int
	Leader         int
	Proposal       []int
	MissionResults []bool
	SideChecks     int
}

// Reduce rebuilds the observable history from a published event log.
func Reduce(events []Event) History {
	h := History{}
	for _, event := range events {
		h.LastSeq = event.Seq
		switch event.Type {
		case EvtRoundStarted:
			h.Mission = event.Mission
			h.Round = event.Round
			h.Leader = event.Leader
			h.Proposal = nil
		case EvtProposalSubmitted:
			if event.Seat == event.Leader {
				h.Proposal = slices.Clone(event.Seats)
			}
		case EvtMissionResult:
			h.MissionResults = append(h.MissionResults, event.Success)
		case EvtSideCheckDone:
			h.SideChecks++
		}
	}
	return h
}
