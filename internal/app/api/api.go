package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	infra_metrics "github.com/kotche/notes/infrastructure/metrics"
	"github.com/kotche/notes/internal/model"
	"github.com/kotche/notes/internal/service/export"
	"github.com/kotche/notes/internal/service/notes"
	"go.uber.org/zap"
)

// IdentityHeader carries the caller id set by the authentication gateway in front of the API.
const IdentityHeader = "X-User-ID"

type identityKey struct{}

type API struct {
	notes   notes.Service
	exports export.Dispatcher
	logger  *zap.Logger
	timeout time.Duration
}

func New(notes notes.Service, exports export.Dispatcher, logger *zap.Logger, timeout time.Duration) *API {
	return &API{
		notes:   notes,
		exports: exports,
		logger:  logger,
		timeout: timeout,
	}
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.observe)
	r.Use(middleware.Timeout(a.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.identify)

		r.Route("/notes", func(r chi.Router) {
			r.Post("/", a.postNote)
			r.Get("/", a.listNotes)
			r.Get("/{id}", a.getNote)
			r.Put("/{id}", a.putNote)
			r.Delete("/{id}", a.deleteNote)
		})

		r.Post("/collaborations", a.postCollaboration)
		r.Delete("/collaborations", a.deleteCollaboration)

		r.Put("/users/me/telegram", a.putTelegram)

		r.Post("/exports", a.postExport)
	})

	return r
}

// identify resolves the caller and registers unknown callers as users.
func (a *API) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := model.UserID(r.Header.Get(IdentityHeader))
		if userID == "" {
			a.fail(w, http.StatusUnauthorized, "missing authentication")
			return
		}

		if err := a.notes.EnsureUserExists(r.Context(), model.User{ID: userID, Login: string(userID)}); err != nil {
			a.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, userID)))
	})
}

func identity(r *http.Request) model.UserID {
	id, _ := r.Context().Value(identityKey{}).(model.UserID)
	return id
}

func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		infra_metrics.ResponseTimeHistogram.WithLabelValues(route).Observe(time.Since(start).Seconds())

		a.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
