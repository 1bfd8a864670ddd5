// Package room keeps the pre-game lobby: who owns a room, who sits where,
// and which game a room started. Seats freeze once the game starts.
package room

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/DoyleJ11/avalon-server/internal/broadcast"
	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/identity"
)

var ErrUnknownRoom = fmt.Errorf("%w: no such room", engine.ErrNotFound)
var ErrUnknownGame = fmt.Errorf("%w: no such game", engine.ErrNotFound)
var ErrRoomNameTaken = fmt.Errorf("%w: room name already taken", engine.ErrValidation)
var ErrInvalidRoom = fmt.Errorf("%w: invalid room", engine.ErrValidation)
var ErrInvalidPosition = fmt.Errorf("%w: invalid seat position", engine.ErrValidation)
var ErrUnknownSeat = fmt.Errorf("%w: not seated in this game", engine.ErrValidation)
var ErrNotOwner = fmt.Errorf("%w: only the owner can start the game", engine.ErrValidation)
var ErrSeatTaken = fmt.Errorf("%w: seat already taken", engine.ErrPhase)
var ErrGameStarted = fmt.Errorf("%w: game already started", engine.ErrPhase)
var ErrRoomNotFull = fmt.Errorf("%w: every seat must be taken", engine.ErrPhase)

// Unseated is the position of a user who joined a room without sitting.
const Unseated = -1

type UpdateType string

const (
	UpdUserJoined  UpdateType = "UserJoined"
	UpdGameStarted UpdateType = "GameStarted"
)

type Update struct {
	Type UpdateType     `json:"type"`
	User *identity.User `json:"user,omitempty"`
	Seat int            `json:"seat"`
	Game int64          `json:"game,omitempty"`
}

type Spec struct {
	Name      string        `json:"name"`
	Roles     []engine.Role `json:"roles"`
	MaxRounds int           `json:"max_rounds"`
}

type Info struct {
	Spec
	Owner  int64 `json:"owner"`
	Seated int   `json:"seated"`
	Game   int64 `json:"game,omitempty"`
}

// StartFunc creates the game for a full room and returns its id.
type StartFunc func(ctx context.Context, roles []engine.Role, maxRounds int) (int64, error)

type room struct {
	spec    Spec
	owner   int64
	seats   map[int64]int // user -> seat, Unseated allowed
	sitting []int64       // seat -> user, 0 = empty
	game    int64
	updates *broadcast.Channel[Update]
}

type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*room
	games     map[int64]*room
	maxRounds int
	buffer    int
}

// NewRegistry returns an empty registry. maxRounds is used for rooms created
// without one; buffer sizes each room stream subscriber's queue.
func NewRegistry(maxRounds, buffer int) *Registry {
	return &Registry{
		rooms:     make(map[string]*room),
		games:     make(map[int64]*room),
		maxRounds: maxRounds,
		buffer:    buffer,
	}
}

func (r *Registry) Create(owner identity.User, spec Spec) (Info, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.MaxRounds == 0 {
		spec.MaxRounds = r.maxRounds
	}
	if spec.Name == "" || len(spec.Roles) == 0 || spec.MaxRounds < 1 {
		return Info{}, ErrInvalidRoom
	}
	for _, role := range spec.Roles {
		if !role.Valid() {
			return Info{}, fmt.Errorf("%w: unknown role %q", ErrInvalidRoom, role)
		}
	}
	spec.Roles = slices.Clone(spec.Roles)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[spec.Name]; ok {
		return Info{}, ErrRoomNameTaken
	}
	rm := &room{
		spec:    spec,
		owner:   owner.ID,
		seats:   make(map[int64]int),
		sitting: make([]int64, len(spec.Roles)),
		updates: broadcast.New[Update](r.buffer),
	}
	r.rooms[spec.Name] = rm
	return rm.info(), nil
}

// List returns every room ordered by name.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.info())
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Join streams the room's updates to the caller: everything so far, then
// live. A newcomer to a room that has not started is registered unseated.
func (r *Registry) Join(user identity.User, name, clientID string, done <-chan struct{}) ([]Update, <-chan Update, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil, nil, ErrUnknownRoom
	}

	history, live := rm.updates.Subscribe(clientID, done)
	if _, seen := rm.seats[user.ID]; !seen && rm.game == 0 {
		rm.seats[user.ID] = Unseated
		rm.publishSeat(user, Unseated)
	}
	return history, live, nil
}

// AssignSeat moves user to position, or stands them up with Unseated.
func (r *Registry) AssignSeat(user identity.User, name string, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return ErrUnknownRoom
	}
	if rm.game != 0 {
		return ErrGameStarted
	}
	if position < Unseated || position >= len(rm.sitting) {
		return ErrInvalidPosition
	}

	current, seated := rm.seats[user.ID]
	if !seated {
		current = Unseated
	}
	if position == current {
		return nil
	}
	if position != Unseated && rm.sitting[position] != 0 {
		return ErrSeatTaken
	}

	if current != Unseated {
		rm.sitting[current] = 0
	}
	rm.seats[user.ID] = position
	if position != Unseated {
		rm.sitting[position] = user.ID
	}
	rm.publishSeat(user, position)
	return nil
}

// Start lets the owner of a full room start its game, once.
func (r *Registry) Start(ctx context.Context, user identity.User, name string, start StartFunc) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return 0, ErrUnknownRoom
	}
	if rm.owner != user.ID {
		return 0, ErrNotOwner
	}
	if rm.game != 0 {
		return 0, ErrGameStarted
	}
	if slices.Contains(rm.sitting, 0) {
		return 0, ErrRoomNotFull
	}

	game, err := start(ctx, rm.spec.Roles, rm.spec.MaxRounds)
	if err != nil {
		return 0, err
	}
	rm.game = game
	r.games[game] = rm
	rm.updates.Publish(Update{Type: UpdGameStarted, Seat: Unseated, Game: game})
	return game, nil
}

// SeatOf resolves the seat userID holds in game.
func (r *Registry) SeatOf(userID, game int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.games[game]
	if !ok {
		return 0, ErrUnknownGame
	}
	seat, ok := rm.seats[userID]
	if !ok || seat == Unseated {
		return 0, ErrUnknownSeat
	}
	return seat, nil
}

func (rm *room) publishSeat(user identity.User, seat int) {
	u := user
	rm.updates.Publish(Update{Type: UpdUserJoined, User: &u, Seat: seat})
}

func (rm *room) info() Info {
	seated := 0
	for _, id := range rm.sitting {
		if id != 0 {
			seated++
		}
	}
	return Info{
		Spec:   Spec{Name: rm.spec.Name, Roles: slices.Clone(rm.spec.Roles), MaxRounds: rm.spec.MaxRounds},
		Owner:  rm.owner,
		Seated: seated,
		Game:   rm.game,
	}
}
