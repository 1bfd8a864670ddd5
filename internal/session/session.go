// Package session runs one game as an actor: every command for the game goes
// through a single inbox and is applied by a single goroutine, so the seat
// indexed vote tables are never touched concurrently.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/broadcast"
	"github.com/DoyleJ11/avalon-server/internal/engine"
)

var ErrClosed = fmt.Errorf("%w: session closed", engine.ErrNotFound)

type Msg interface{ isSessionMsg() }

type FromClient struct {
	Cmd   engine.Command
	Reply chan Result // buffered, capacity 1
}

func (FromClient) isSessionMsg() {}

type Join struct {
	ClientID string
	Done     <-chan struct{} // closed when the client's connection ends
	Reply    chan Subscription
}

func (Join) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Result struct {
	Version int
	IsLoyal bool // side checks only
	Err     error
}

// Subscription holds everything published before the join plus a queue of
// everything published after it.
type Subscription struct {
	History []engine.Event
	Events  <-chan engine.Event
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

// Archiver receives every published event. It must not block.
type Archiver interface {
	Archive(sessionID int64, e engine.Event)
}

type Options struct {
	Logger           *zap.Logger
	Archiver         Archiver
	SubscriberBuffer int
}

type Session struct {
	id      int64
	inbox   chan Msg
	state   engine.State
	version int
	updates *broadcast.Channel[engine.Event]
	archive Archiver
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts the session actor. opening holds the events produced when the
// game was set up; they are published before any command is accepted.
func New(parent context.Context, id int64, initial engine.State, opening []engine.Event, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = 64
	}

	s := &Session{
		id:      id,
		inbox:   make(chan Msg, 64), // Small buffer
		state:   initial,
		updates: broadcast.New[engine.Event](buffer),
		archive: opts.Archiver,
		log:     logger.With(zap.Int64("session", id)),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, e := range opening {
		s.publish(e)
	}

	go s.loop()
	return s
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				history, live := s.updates.Subscribe(msg.ClientID, msg.Done)
				msg.Reply <- Subscription{History: history, Events: live}
				s.log.Debug("subscriber joined",
					zap.String("client", msg.ClientID), zap.Int("history", len(history)))

			case FromClient:
				msg.Reply <- s.apply(msg.Cmd)

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: s.updates.Subscribers(),
					State:      s.state,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) apply(cmd engine.Command) Result {
	events, next, err := engine.Apply(s.state, cmd)
	if err != nil {
		s.log.Debug("command rejected",
			zap.String("command", string(cmd.Type)), zap.Int("seat", cmd.Seat), zap.Error(err))
		return Result{Version: s.version, Err: err}
	}

	s.state = next
	for _, e := range events {
		s.publish(e)
	}
	if engine.ContainsEvent(events, engine.EvtMissionResult) {
		s.log.Info("mission resolved", zap.Int("mission", s.state.Mission), zap.Int("version", s.version))
	}

	res := Result{Version: s.version}
	if cmd.Type == engine.CmdSideCheck {
		res.IsLoyal = engine.IsLoyal(s.state, cmd.Target)
	}
	return res
}

// publish stamps the next sequence number on e, appends it to the log and
// fans it out.
func (s *Session) publish(e engine.Event) {
	s.version++
	e.Seq = s.version
	s.updates.Publish(e)
	if s.archive != nil {
		s.archive.Archive(s.id, e)
	}
	s.log.Debug("event published", zap.Int("seq", e.Seq), zap.String("type", string(e.Type)))
}

func (s *Session) shutdown() {
	s.updates.Close() // Tell clients no more events
	s.cancel()
}

// Close stops the session without going through the inbox.
func (s *Session) Close() { s.cancel() }

// Expose the inbox so tests or the transport layer can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Do runs cmd on the session and waits for its result.
func (s *Session) Do(ctx context.Context, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	if err := s.send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.ctx.Done():
		return Result{}, ErrClosed
	}
}

// Subscribe registers clientID for live events. done must be closed once the
// client goes away; the registration is dropped on the next publish.
func (s *Session) Subscribe(ctx context.Context, clientID string, done <-chan struct{}) (Subscription, error) {
	reply := make(chan Subscription, 1)
	if err := s.send(ctx, Join{ClientID: clientID, Done: done, Reply: reply}); err != nil {
		return Subscription{}, err
	}
	select {
	case sub := <-reply:
		return sub, nil
	case <-ctx.Done():
		return Subscription{}, ctx.Err()
	case <-s.ctx.Done():
		return Subscription{}, ErrClosed
	}
}

func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.ctx.Done():
		return View{}, ErrClosed
	}
}

func (s *Session) send(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}
