// Package server exposes the daemon over a small synchronous HTTP
// surface. Every handler returns JSON; failures become a non-2xx status
// with {"error": ...} and never escape the router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/tabtail"
	"github.com/hazyhaar/tabtail/internal/browser"
	"github.com/hazyhaar/tabtail/internal/extensions"
	"github.com/hazyhaar/tabtail/internal/snapshot"
)

// Server wraps the chi router around a Daemon.
type Server struct {
	daemon *tabtail.Daemon
	logger *slog.Logger
	http   *http.Server
}

// New builds the router. Call Start to listen.
func New(d *tabtail.Daemon, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{daemon: d, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/errors", s.handleErrors)
	r.Get("/errors/summary", s.handleErrorsSummary)
	r.Get("/console", s.handleConsole)
	r.Get("/network", s.handleNetwork)
	r.Get("/snapshot", s.handleSnapshot)
	r.Get("/inspect", s.handleInspect)
	r.Get("/screenshot", s.handleScreenshot)
	r.Get("/extensions", s.handleExtensions)
	r.Get("/extension/{id}/errors", s.handleExtensionErrors)

	r.Post("/navigate", s.handleNavigate)
	r.Post("/reload-page", s.handleReloadPage)
	r.Post("/eval", s.handleEval)
	r.Post("/click", s.handleClick)
	r.Post("/fill", s.handleFill)
	r.Post("/clear", s.handleClear)
	r.Post("/reload-ext/{id}", s.handleReloadExt)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens until the context is cancelled, then shuts down with a
// short grace period.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fail maps the error taxonomy to HTTP statuses. Connection loss is
// only ever visible as a uniform "not connected" rejection; operation
// failures carry their message.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var evalErr *browser.EvalException

	switch {
	case errors.Is(err, browser.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, errors.New("not connected"))
	case errors.Is(err, snapshot.ErrStaleRef),
		errors.Is(err, snapshot.ErrElementNotFound),
		errors.Is(err, extensions.ErrExtensionNotFound),
		errors.Is(err, browser.ErrNoMatchingTarget):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &evalErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.logger.Error("server: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}
