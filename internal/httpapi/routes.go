package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/coordinator"
	"github.com/DoyleJ11/avalon-server/internal/ws"
)

func SetupRoutes(svc *coordinator.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &api{svc: svc, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, accessLog(logger))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/users", a.CreateUser)
	r.Get("/rooms", a.ListRooms)

	// Credentialed routes
	r.Post("/rooms", a.CreateRoom)
	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Post("/seat", a.AssignSeat)
		r.Post("/start", a.StartGame)
		r.Get("/ws", ws.RoomHandler(svc, logger))
	})
	r.Route("/games/{game}", func(r chi.Router) {
		r.Post("/proposals", a.SubmitProposal)
		r.Post("/approval", a.CastApprovalVote)
		r.Post("/mission", a.CastMissionVote)
		r.Post("/side-check", a.PerformSideCheck)
		r.Post("/assassinate", a.Assassinate)
		r.Get("/ws", ws.GameHandler(svc, logger))
	})
	return r
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
