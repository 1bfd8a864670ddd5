package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/avalon-server/internal/coordinator"
	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/hub"
	"github.com/DoyleJ11/avalon-server/internal/identity"
	"github.com/DoyleJ11/avalon-server/internal/room"
	"github.com/DoyleJ11/avalon-server/internal/session"
	"github.com/DoyleJ11/avalon-server/internal/types"
)

var threeRoles = []engine.Role{engine.RoleMerlin, engine.RoleAssassin, engine.RoleLoyalServant}

type fixture struct {
	svc   *coordinator.Service
	srv   *httptest.Server
	creds []identity.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t)
	h := hub.NewHub(ctx, hub.Options{
		Rand:    rand.New(rand.NewPCG(5, 6)),
		Session: session.Options{Logger: logger},
	})
	svc := coordinator.New(identity.NewRegistry(), room.NewRegistry(5, 16), h, logger)

	r := chi.NewRouter()
	r.Get("/rooms/{room}/ws", RoomHandler(svc, logger))
	r.Get("/games/{game}/ws", GameHandler(svc, logger))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	f := &fixture{svc: svc, srv: srv}
	for i := range threeRoles {
		cred, err := svc.CreateUser(fmt.Sprintf("knight-%d", i))
		require.NoError(t, err)
		f.creds = append(f.creds, cred)
	}
	_, err := svc.CreateRoom(f.creds[0], room.Spec{Name: "camelot", Roles: threeRoles})
	require.NoError(t, err)
	return f
}

func (f *fixture) start(t *testing.T) int64 {
	t.Helper()
	for seat, cred := range f.creds {
		require.NoError(t, f.svc.AssignSeat(cred, "camelot", seat))
	}
	game, err := f.svc.StartGame(context.Background(), f.creds[0], "camelot")
	require.NoError(t, err)
	return game
}

func (f *fixture) url(path string, cred identity.Credential) string {
	return fmt.Sprintf("ws%s%s?id=%d&token=%s",
		strings.TrimPrefix(f.srv.URL, "http"), path, cred.ID, cred.Token)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestRoomStream(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f.url("/rooms/camelot/ws", f.creds[1]))

	joined := readMessage(t, conn)
	require.Equal(t, "RoomUpdate", joined.Type)
	assert.Equal(t, room.UpdUserJoined, joined.Room.Type)
	assert.Equal(t, f.creds[1].ID, joined.Room.User.ID)
	assert.Equal(t, room.Unseated, joined.Room.Seat)

	game := f.start(t)

	var last types.ServerMessage
	for i := 0; i < len(f.creds); i++ {
		last = readMessage(t, conn) // one seat update per player
	}
	assert.Equal(t, room.UpdUserJoined, last.Room.Type)

	started := readMessage(t, conn)
	assert.Equal(t, room.UpdGameStarted, started.Room.Type)
	assert.Equal(t, game, started.Room.Game)
}

func TestGameStream_HistoryThenLive(t *testing.T) {
	f := newFixture(t)
	game := f.start(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, f.creds[0], game, "probe", nil)
	require.NoError(t, err)
	leader := sub.History[0].Leader

	conn := dial(t, f.url(fmt.Sprintf("/games/%d/ws", game), f.creds[2]))
	first := readMessage(t, conn)
	require.Equal(t, "Event", first.Type)
	assert.Equal(t, 1, first.Event.Seq)
	assert.Equal(t, engine.EvtRoundStarted, first.Event.Type)

	require.NoError(t, f.svc.SubmitProposal(ctx, f.creds[leader], game, []int{leader}))
	next := readMessage(t, conn)
	assert.Equal(t, 2, next.Event.Seq)
	assert.Equal(t, engine.EvtProposalSubmitted, next.Event.Type)
	assert.Equal(t, []int{leader}, next.Event.Seats)
}

func TestGameStream_CommandsOverSocket(t *testing.T) {
	f := newFixture(t)
	game := f.start(t)

	conn := dial(t, f.url(fmt.Sprintf("/games/%d/ws", game), f.creds[1]))
	readMessage(t, conn) // RoundStarted

	send(t, conn, types.ClientMessage{Type: "ApprovalVote", Vote: "agree"})
	cast := readMessage(t, conn)
	require.Equal(t, "Event", cast.Type)
	assert.Equal(t, engine.EvtApprovalVoteCast, cast.Event.Type)
	assert.Equal(t, 1, cast.Event.Seat)

	target := 0
	send(t, conn, types.ClientMessage{Type: "SideCheck", Target: &target})
	// the event and the direct result may arrive in either order
	got := map[string]types.ServerMessage{}
	for i := 0; i < 2; i++ {
		m := readMessage(t, conn)
		got[m.Type] = m
	}
	require.Contains(t, got, "SideCheckResult")
	require.Contains(t, got, "Event")
	assert.Equal(t, engine.EvtSideCheckDone, got["Event"].Event.Type)

	send(t, conn, types.ClientMessage{Type: "MissionVote"})
	assert.Equal(t, "Error", readMessage(t, conn).Type)

	send(t, conn, types.ClientMessage{Type: "Dance"})
	assert.Equal(t, "Error", readMessage(t, conn).Type)
}

func TestGameStream_RejectsBeforeUpgrade(t *testing.T) {
	f := newFixture(t)
	game := f.start(t)

	cases := []struct {
		name string
		path string
		want int
	}{
		{name: "no credential", path: fmt.Sprintf("/games/%d/ws", game), want: http.StatusUnauthorized},
		{name: "forged token", path: fmt.Sprintf("/games/%d/ws?id=%d&token=x", game, f.creds[0].ID), want: http.StatusUnauthorized},
		{name: "unknown game", path: fmt.Sprintf("/games/99/ws?id=%d&token=%s", f.creds[0].ID, f.creds[0].Token), want: http.StatusNotFound},
		{name: "unknown room", path: fmt.Sprintf("/rooms/nowhere/ws?id=%d&token=%s", f.creds[0].ID, f.creds[0].Token), want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(f.srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestToEngineCommand(t *testing.T) {
	yes, two := true, 2
	cases := []struct {
		msg     types.ClientMessage
		want    engine.Command
		wantErr bool
	}{
		{msg: types.ClientMessage{Type: "Propose", Seats: []int{0, 1}}, want: engine.Command{Type: engine.CmdPropose, Seats: []int{0, 1}}},
		{msg: types.ClientMessage{Type: "ApprovalVote", Vote: "reject"}, want: engine.Command{Type: engine.CmdApprovalVote, Approval: engine.ApprovalReject}},
		{msg: types.ClientMessage{Type: "MissionVote", Success: &yes}, want: engine.Command{Type: engine.CmdMissionVote, Success: true}},
		{msg: types.ClientMessage{Type: "SideCheck", Target: &two}, want: engine.Command{Type: engine.CmdSideCheck, Target: 2}},
		{msg: types.ClientMessage{Type: "Assassinate", Target: &two}, want: engine.Command{Type: engine.CmdAssassinate, Target: 2}},
		{msg: types.ClientMessage{Type: "Assassinate"}, wantErr: true},
		{msg: types.ClientMessage{Type: "LockPick"}, wantErr: true},
	}
	for _, tc := range cases {
		got, err := toEngineCommand(tc.msg)
		if tc.wantErr {
			assert.ErrorIs(t, err, types.ErrBadRequest, tc.msg.Type)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestStreamEvents(t *testing.T) {
	history := []engine.Event{{Seq: 1}, {Seq: 2}}

	t.Run("returns when the connection goes away", func(t *testing.T) {
		live := make(chan engine.Event) // never published to, never closed
		ctx, cancel := context.WithCancel(context.Background())

		var written []int
		finished := make(chan bool, 1)
		go func() {
			finished <- streamEvents(ctx, session.Subscription{History: history, Events: live},
				func(_ context.Context, e engine.Event) error {
					written = append(written, e.Seq)
					return nil
				})
		}()

		cancel()
		select {
		case closed := <-finished:
			assert.False(t, closed)
		case <-time.After(time.Second):
			t.Fatal("writer outlived its connection")
		}
		assert.Equal(t, []int{1, 2}, written)
	})

	t.Run("reports a closed queue", func(t *testing.T) {
		live := make(chan engine.Event, 1)
		live <- engine.Event{Seq: 3}
		close(live)

		var written []int
		closed := streamEvents(context.Background(), session.Subscription{History: history, Events: live},
			func(_ context.Context, e engine.Event) error {
				written = append(written, e.Seq)
				return nil
			})
		assert.True(t, closed)
		assert.Equal(t, []int{1, 2, 3}, written)
	})

	t.Run("stops on a failed write", func(t *testing.T) {
		calls := 0
		closed := streamEvents(context.Background(), session.Subscription{History: history},
			func(context.Context, engine.Event) error {
				calls++
				return errors.New("broken pipe")
			})
		assert.False(t, closed)
		assert.Equal(t, 1, calls)
	})
}
