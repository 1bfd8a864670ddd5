// Package coordinator routes authenticated player commands to the game they
// belong to. Every per-seat command resolves the caller's credential to a
// user, the user to a seat in the game, and only then reaches the session.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/hub"
	"github.com/DoyleJ11/avalon-server/internal/identity"
	"github.com/DoyleJ11/avalon-server/internal/room"
	"github.com/DoyleJ11/avalon-server/internal/session"
)

type Service struct {
	users *identity.Registry
	rooms *room.Registry
	hub   *hub.Hub
	log   *zap.Logger
}

func New(users *identity.Registry, rooms *room.Registry, h *hub.Hub, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, rooms: rooms, hub: h, log: logger}
}

func (s *Service) CreateUser(name string) (identity.Credential, error) {
	cred, err := s.users.Create(name)
	if err != nil {
		return identity.Credential{}, err
	}
	s.log.Info("user created", zap.Int64("user", cred.ID))
	return cred, nil
}

func (s *Service) CreateRoom(cred identity.Credential, spec room.Spec) (room.Info, error) {
	user, err := s.users.Validate(cred)
	if err != nil {
		return room.Info{}, err
	}
	return s.rooms.Create(user, spec)
}

func (s *Service) ListRooms() []room.Info {
	return s.rooms.List()
}

func (s *Service) JoinRoom(cred identity.Credential, name, clientID string, done <-chan struct{}) ([]room.Update, <-chan room.Update, error) {
	user, err := s.users.Validate(cred)
	if err != nil {
		return nil, nil, err
	}
	return s.rooms.Join(user, name, clientID, done)
}

func (s *Service) AssignSeat(cred identity.Credential, name string, seat int) error {
	user, err := s.users.Validate(cred)
	if err != nil {
		return err
	}
	return s.rooms.AssignSeat(user, name, seat)
}

// StartGame creates the session for a full room. Only the room owner may.
func (s *Service) StartGame(ctx context.Context, cred identity.Credential, name string) (int64, error) {
	user, err := s.users.Validate(cred)
	if err != nil {
		return 0, err
	}
	game, err := s.rooms.Start(ctx, user, name, s.CreateSession)
	if err != nil {
		return 0, err
	}
	s.log.Info("game started", zap.String("room", name), zap.Int64("session", game))
	return game, nil
}

// CreateSession seats len(roles) players and returns the new session id.
func (s *Service) CreateSession(ctx context.Context, roles []engine.Role, maxRounds int) (int64, error) {
	sess, err := s.hub.CreateSession(ctx, roles, maxRounds)
	if err != nil {
		return 0, err
	}
	return sess.ID(), nil
}

func (s *Service) SubmitProposal(ctx context.Context, cred identity.Credential, game int64, seats []int) error {
	_, err := s.route(ctx, cred, game, engine.Command{Type: engine.CmdPropose, Seats: seats})
	return err
}

func (s *Service) CastApprovalVote(ctx context.Context, cred identity.Credential, game int64, vote engine.Approval) error {
	_, err := s.route(ctx, cred, game, engine.Command{Type: engine.CmdApprovalVote, Approval: vote})
	return err
}

func (s *Service) CastMissionVote(ctx context.Context, cred identity.Credential, game int64, success bool) error {
	_, err := s.route(ctx, cred, game, engine.Command{Type: engine.CmdMissionVote, Success: success})
	return err
}

// PerformSideCheck reports whether the role at target is loyal.
func (s *Service) PerformSideCheck(ctx context.Context, cred identity.Credential, game int64, target int) (bool, error) {
	res, err := s.route(ctx, cred, game, engine.Command{Type: engine.CmdSideCheck, Target: target})
	if err != nil {
		return false, err
	}
	return res.IsLoyal, nil
}

// Assassinate is accepted and does nothing yet.
func (s *Service) Assassinate(ctx context.Context, cred identity.Credential, game int64, target int) error {
	_, err := s.route(ctx, cred, game, engine.Command{Type: engine.CmdAssassinate, Target: target})
	return err
}

// Submit runs any seat command on behalf of the credential's holder. The
// seat in cmd is ignored and replaced by the caller's own.
func (s *Service) Submit(ctx context.Context, cred identity.Credential, game int64, cmd engine.Command) (session.Result, error) {
	return s.route(ctx, cred, game, cmd)
}

// Subscribe streams a game's events: full history first, then live. Any
// valid user may watch, seated or not.
func (s *Service) Subscribe(ctx context.Context, cred identity.Credential, game int64, clientID string, done <-chan struct{}) (session.Subscription, error) {
	if _, err := s.users.Validate(cred); err != nil {
		return session.Subscription{}, err
	}
	sess, err := s.hub.Session(ctx, game)
	if err != nil {
		return session.Subscription{}, err
	}
	return sess.Subscribe(ctx, clientID, done)
}

func (s *Service) route(ctx context.Context, cred identity.Credential, game int64, cmd engine.Command) (session.Result, error) {
	user, err := s.users.Validate(cred)
	if err != nil {
		return session.Result{}, err
	}
	sess, err := s.hub.Session(ctx, game)
	if err != nil {
		return session.Result{}, err
	}
	seat, err := s.rooms.SeatOf(user.ID, game)
	if errors.Is(err, room.ErrUnknownGame) {
		// the game exists but no room seated anyone in it
		return session.Result{}, room.ErrUnknownSeat
	}
	if err != nil {
		return session.Result{}, err
	}

	cmd.Seat = seat
	res, err := sess.Do(ctx, cmd)
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return res, nil
}
