package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/coordinator"
	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/identity"
	"github.com/DoyleJ11/avalon-server/internal/room"
	"github.com/DoyleJ11/avalon-server/internal/types"
)

const (
	headerUserID    = "X-User-ID"
	headerUserToken = "X-User-Token"
)

type api struct {
	svc *coordinator.Service
	log *zap.Logger
}

func (a *api) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	if !a.decode(w, r, &req) {
		return
	}
	cred, err := a.svc.CreateUser(req.Username)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreateUserResponse{ID: cred.ID, Token: cred.Token})
}

func (a *api) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ListRooms())
}

func (a *api) CreateRoom(w http.ResponseWriter, r *http.Request) {
	cred, ok := a.credential(w, r)
	if !ok {
		return
	}
	var spec room.Spec
	if !a.decode(w, r, &spec) {
		return
	}
	info, err := a.svc.CreateRoom(cred, spec)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *api) AssignSeat(w http.ResponseWriter, r *http.Request) {
	cred, ok := a.credential(w, r)
	if !ok {
		return
	}
	var req types.SeatRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Seat == nil {
		a.fail(w, fmt.Errorf("%w: seat is required", types.ErrBadRequest))
		return
	}
	if err := a.svc.AssignSeat(cred, chi.URLParam(r, "room"), *req.Seat); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) StartGame(w http.ResponseWriter, r *http.Request) {
	cred, ok := a.credential(w, r)
	if !ok {
		return
	}
	game, err := a.svc.StartGame(r.Context(), cred, chi.URLParam(r, "room"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.StartGameResponse{Game: game})
}

func (a *api) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req types.ProposalRequest
	cred, game, ok := a.gameRequest(w, r, &req)
	if !ok {
		return
	}
	a.done(w, a.svc.SubmitProposal(r.Context(), cred, game, req.Seats))
}

func (a *api) CastApprovalVote(w http.ResponseWriter, r *http.Request) {
	var req types.ApprovalRequest
	cred, game, ok := a.gameRequest(w, r, &req)
	if !ok {
		return
	}
	a.done(w, a.svc.CastApprovalVote(r.Context(), cred, game, engine.Approval(req.Vote)))
}

func (a *api) CastMissionVote(w http.ResponseWriter, r *http.Request) {
	var req types.MissionRequest
	cred, game, ok := a.gameRequest(w, r, &req)
	if !ok {
		return
	}
	if req.Success == nil {
		a.fail(w, fmt.Errorf("%w: success is required", types.ErrBadRequest))
		return
	}
	a.done(w, a.svc.CastMissionVote(r.Context(), cred, game, *req.Success))
}

func (a *api) PerformSideCheck(w http.ResponseWriter, r *http.Request) {
	var req types.TargetRequest
	cred, game, ok := a.gameRequest(w, r, &req)
	if !ok {
		return
	}
	if req.Target == nil {
		a.fail(w, fmt.Errorf("%w: target is required", types.ErrBadRequest))
		return
	}
	loyal, err := a.svc.PerformSideCheck(r.Context(), cred, game, *req.Target)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SideCheckResponse{Target: *req.Target, IsLoyal: loyal})
}

func (a *api) Assassinate(w http.ResponseWriter, r *http.Request) {
	var req types.TargetRequest
	cred, game, ok := a.gameRequest(w, r, &req)
	if !ok {
		return
	}
	if req.Target == nil {
		a.fail(w, fmt.Errorf("%w: target is required", types.ErrBadRequest))
		return
	}
	a.done(w, a.svc.Assassinate(r.Context(), cred, game, *req.Target))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// gameRequest reads the credential, the {game} URL param and the JSON body.
func (a *api) gameRequest(w http.ResponseWriter, r *http.Request, body any) (identity.Credential, int64, bool) {
	cred, ok := a.credential(w, r)
	if !ok {
		return identity.Credential{}, 0, false
	}
	game, err := strconv.ParseInt(chi.URLParam(r, "game"), 10, 64)
	if err != nil {
		a.fail(w, fmt.Errorf("%w: bad game id", types.ErrBadRequest))
		return identity.Credential{}, 0, false
	}
	if !a.decode(w, r, body) {
		return identity.Credential{}, 0, false
	}
	return cred, game, true
}

func (a *api) credential(w http.ResponseWriter, r *http.Request) (identity.Credential, bool) {
	id, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
	token := r.Header.Get(headerUserToken)
	if err != nil || token == "" {
		a.fail(w, identity.ErrAuth)
		return identity.Credential{}, false
	}
	return identity.Credential{ID: id, Token: token}, true
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.fail(w, fmt.Errorf("%w: bad json", types.ErrBadRequest))
		return false
	}
	return true
}

func (a *api) done(w http.ResponseWriter, err error) {
	if err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) fail(w http.ResponseWriter, err error) {
	status := types.StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
