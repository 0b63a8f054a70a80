package labmod

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusServer exposes the per-module status of a Manager over HTTP, plus
// control endpoints mirroring the lifecycle operations. It is the queryable
// surface for partial systems: after an activation failure, some modules are
// Active and some Error, and this API reports which.
//
//	GET  /healthz
//	GET  /modules
//	GET  /modules/{name}
//	POST /modules/{name}/activate
//	POST /modules/{name}/deactivate
//	POST /modules/{name}/reload
//	POST /modules/{name}/reset
type StatusServer struct {
	manager *Manager
	logger  Logger
	server  *http.Server
}

// NewStatusServer creates a status server listening on addr.
func NewStatusServer(manager *Manager, addr string, logger Logger) *StatusServer {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}
	s := &StatusServer{manager: manager, logger: logger}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the chi router. Exposed separately so tests can drive the
// handlers without a listener.
func (s *StatusServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/modules", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/activate", s.handleActivate)
			r.Post("/deactivate", s.handleDeactivate)
			r.Post("/reload", s.handleReload)
			r.Post("/reset", s.handleReset)
		})
	})
	return r
}

// Start begins serving in a background goroutine.
func (s *StatusServer) Start() {
	go func() {
		s.logger.Info("Status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return nil
}

func (s *StatusServer) handleList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Statuses())
}

func (s *StatusServer) handleGet(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *StatusServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.manager.Activate(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondStatus(w, name)
}

func (s *StatusServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.manager.Deactivate(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondStatus(w, name)
}

func (s *StatusServer) handleReload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.manager.Reload(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondStatus(w, name)
}

func (s *StatusServer) handleReset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.manager.Reset(name); err != nil {
		s.writeError(w, err)
		return
	}
	s.respondStatus(w, name)
}

func (s *StatusServer) respondStatus(w http.ResponseWriter, name string) {
	status, err := s.manager.Status(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *StatusServer) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrModuleNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrReloadInProgress), errors.Is(err, ErrModuleNotInError):
		code = http.StatusConflict
	case errors.Is(err, ErrManagerStopped):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ErrDependencyFailed), errors.Is(err, ErrClassNotRegistered):
		code = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *StatusServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
