package hub

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/session"
)

var ErrUnknownSession = fmt.Errorf("%w: no such game", engine.ErrNotFound)
var ErrHubClosed = fmt.Errorf("%w: hub closed", engine.ErrNotFound)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Roles     []engine.Role
	MaxRounds int
	Reply     chan Created
}

type Created struct {
	Session *session.Session
	Err     error
}

type GetSession struct {
	ID    int64
	Reply chan *session.Session
}

type RemoveSession struct {
	ID int64
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Options struct {
	Session session.Options
	// Rand shuffles roles and picks the first leader. Only the hub
	// goroutine touches it.
	Rand *rand.Rand
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[int64]*session.Session
	lastID   int64
	rng      *rand.Rand
	opts     session.Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	logger := opts.Session.Logger
	if logger == nil {
		logger = zap.NewNop()
		opts.Session.Logger = logger
	}

	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[int64]*session.Session),
		rng:      rng,
		opts:     opts.Session,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				s, err := h.create(msg.Roles, msg.MaxRounds)
				msg.Reply <- Created{Session: s, Err: err}

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case RemoveSession:
				if s := h.sessions[msg.ID]; s != nil {
					stopSession(s)
					delete(h.sessions, msg.ID)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// create seats a fresh game. Ids start at 1 and are never handed out twice.
func (h *Hub) create(roles []engine.Role, maxRounds int) (*session.Session, error) {
	shuffled := slices.Clone(roles)
	h.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	leader := 0
	if len(shuffled) > 0 {
		leader = h.rng.IntN(len(shuffled))
	}
	state, opening, err := engine.NewGame(shuffled, maxRounds, leader)
	if err != nil {
		return nil, err
	}

	h.lastID++
	s := session.New(h.ctx, h.lastID, state, opening, h.opts)
	h.sessions[h.lastID] = s
	h.log.Info("session created",
		zap.Int64("session", h.lastID), zap.Int("seats", len(shuffled)), zap.Int("leader", leader))
	return s, nil
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		stopSession(s)
		delete(h.sessions, id)
	}
	h.cancel()
}

// stopSession never blocks the hub loop. A session whose inbox is full, or
// that already exited, is stopped through Close instead.
func stopSession(s *session.Session) {
	select {
	case s.Inbox() <- session.Shutdown{}:
	default:
		s.Close()
	}
}

// CreateSession seats len(roles) players with the roles shuffled.
func (h *Hub) CreateSession(ctx context.Context, roles []engine.Role, maxRounds int) (*session.Session, error) {
	reply := make(chan Created, 1)
	if err := h.send(ctx, CreateSession{Roles: roles, MaxRounds: maxRounds, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case c := <-reply:
		return c.Session, c.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

func (h *Hub) Session(ctx context.Context, id int64) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.send(ctx, GetSession{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		if s == nil {
			return nil, ErrUnknownSession
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}
