package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/identity"
	"github.com/DoyleJ11/avalon-server/internal/room"
	"github.com/DoyleJ11/avalon-server/internal/session"
	"github.com/DoyleJ11/avalon-server/internal/types"
)

const writeTimeout = 3 * time.Second

type GameService interface {
	Subscribe(ctx context.Context, cred identity.Credential, game int64, clientID string, done <-chan struct{}) (session.Subscription, error)
	Submit(ctx context.Context, cred identity.Credential, game int64, cmd engine.Command) (session.Result, error)
}

type RoomService interface {
	JoinRoom(cred identity.Credential, name, clientID string, done <-chan struct{}) ([]room.Update, <-chan room.Update, error)
}

// GameHandler streams a game's events, full history first, and accepts
// seat commands from the same connection.
func GameHandler(svc GameService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		game, err := strconv.ParseInt(chi.URLParam(r, "game"), 10, 64)
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		cred, err := credentialFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), types.StatusOf(err))
			return
		}

		done := make(chan struct{})
		defer close(done)

		clientID := uuid.NewString()
		sub, err := svc.Subscribe(r.Context(), cred, game, clientID, done)
		if err != nil {
			http.Error(w, err.Error(), types.StatusOf(err))
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := logger.With(zap.Int64("session", game), zap.String("client", clientID))
		log.Debug("game stream opened", zap.Int("history", len(sub.History)))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			closed := streamEvents(writeCtx, sub, func(ctx context.Context, e engine.Event) error {
				return writeJSON(ctx, conn, eventMessage(e))
			})
			if closed {
				// queue closed: the session ended or this client fell behind
				conn.Close(websocket.StatusGoingAway, "stream closed")
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("game stream read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeJSON(r.Context(), conn, errorMessage(fmt.Errorf("%w: bad json", types.ErrBadRequest)))
				continue
			}
			cmd, err := toEngineCommand(cm)
			if err != nil {
				_ = writeJSON(r.Context(), conn, errorMessage(err))
				continue
			}

			res, err := svc.Submit(r.Context(), cred, game, cmd)
			if err != nil {
				_ = writeJSON(r.Context(), conn, errorMessage(err))
				continue
			}
			if cmd.Type == engine.CmdSideCheck {
				_ = writeJSON(r.Context(), conn, types.ServerMessage{
					Type: "SideCheckResult", Target: cmd.Target, IsLoyal: res.IsLoyal,
				})
			}
		}
	}
}

// RoomHandler streams a room's seat and start updates.
func RoomHandler(svc RoomService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "room")
		cred, err := credentialFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), types.StatusOf(err))
			return
		}

		done := make(chan struct{})
		defer close(done)

		clientID := uuid.NewString()
		history, live, err := svc.JoinRoom(cred, name, clientID, done)
		if err != nil {
			http.Error(w, err.Error(), types.StatusOf(err))
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// the room stream is one-way; CloseRead handles pings and the close frame
		ctx := conn.CloseRead(r.Context())
		logger.Debug("room stream opened", zap.String("room", name), zap.String("client", clientID))

		for _, u := range history {
			if err := writeJSON(ctx, conn, roomMessage(u)); err != nil {
				return
			}
		}
		for {
			select {
			case u, ok := <-live:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "stream closed")
					return
				}
				if err := writeJSON(ctx, conn, roomMessage(u)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// streamEvents writes the history, then live events, until the queue closes
// (reported as true), a write fails or ctx ends.
func streamEvents(ctx context.Context, sub session.Subscription, write func(context.Context, engine.Event) error) bool {
	for _, e := range sub.History {
		if err := write(ctx, e); err != nil {
			return false
		}
	}
	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return true
			}
			if err := write(ctx, e); err != nil {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

func toEngineCommand(m types.ClientMessage) (engine.Command, error) {
	switch m.Type {
	case "Propose":
		return engine.Command{Type: engine.CmdPropose, Seats: m.Seats}, nil
	case "ApprovalVote":
		return engine.Command{Type: engine.CmdApprovalVote, Approval: engine.Approval(m.Vote)}, nil
	case "MissionVote":
		if m.Success == nil {
			return engine.Command{}, fmt.Errorf("%w: success is required", types.ErrBadRequest)
		}
		return engine.Command{Type: engine.CmdMissionVote, Success: *m.Success}, nil
	case "SideCheck", "Assassinate":
		if m.Target == nil {
			return engine.Command{}, fmt.Errorf("%w: target is required", types.ErrBadRequest)
		}
		typ := engine.CmdSideCheck
		if m.Type == "Assassinate" {
			typ = engine.CmdAssassinate
		}
		return engine.Command{Type: typ, Target: *m.Target}, nil
	default:
		return engine.Command{}, fmt.Errorf("%w: unknown type %q", types.ErrBadRequest, m.Type)
	}
}

func credentialFromQuery(r *http.Request) (identity.Credential, error) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil || q.Get("token") == "" {
		return identity.Credential{}, identity.ErrAuth
	}
	return identity.Credential{ID: id, Token: q.Get("token")}, nil
}

func eventMessage(e engine.Event) types.ServerMessage {
	return types.ServerMessage{Type: "Event", Event: &e}
}

func roomMessage(u room.Update) types.ServerMessage {
	return types.ServerMessage{Type: "RoomUpdate", Room: &u}
}

func errorMessage(err error) types.ServerMessage {
	msg := err.Error()
	if types.StatusOf(err) == http.StatusInternalServerError {
		msg = "internal error"
	}
	return types.ServerMessage{Type: "Error", Error: msg}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
