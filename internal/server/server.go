// Package server exposes signal generation over HTTP.
//
//	GET  /healthz
//	POST /v1/signals/generate?type=&priority=&save=
//	GET  /v1/signals?type=&priority=&limit=
//	POST /v1/crm/connect
//
// Every /v1 route requires the X-User-ID header.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/logging"
	"github.com/roach88/crmsignal/internal/service"
	"github.com/roach88/crmsignal/internal/store"
)

// noConnectionsMessage is returned when a user has nothing to evaluate.
const noConnectionsMessage = "No CRM connections found. Please connect a CRM first."

// Server holds the HTTP handlers.
type Server struct {
	svc    *service.Service
	logger *slog.Logger
}

// New creates a Server over svc.
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.L()
	}
	return &Server{svc: svc, logger: logger}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"engine": canon.EngineVersion,
			"schema": canon.SchemaVersion,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/signals/generate", s.generate)
		r.Get("/signals", s.listSignals)
		r.Post("/crm/connect", s.connect)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func filterFrom(r *http.Request) engine.Filter {
	q := r.URL.Query()
	return engine.Filter{Type: q.Get("type"), Priority: canon.Priority(q.Get("priority"))}
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	gen, err := s.svc.Generate(r.Context(), service.GenerateRequest{
		UserID: userID(r),
		Filter: filterFrom(r),
		Save:   r.URL.Query().Get("save") != "false",
	})
	if errors.Is(err, service.ErrNoConnections) {
		writeJSON(w, http.StatusOK, generateResponse{
			Success: false,
			Message: noConnectionsMessage,
			Signals: []canon.Signal{},
		})
		return
	}
	if err != nil {
		s.logger.Error("signal generation failed", "user_id", userID(r), "error", err)
		writeError(w, http.StatusInternalServerError, "GENERATION_FAILED", "An error occurred while generating signals")
		return
	}

	resp := generateResponse{
		Success: true,
		Count:   len(gen.Signals),
		Signals: gen.Signals,
	}
	if resp.Signals == nil {
		resp.Signals = []canon.Signal{}
	}
	for _, e := range gen.Errors {
		resp.Errors = append(resp.Errors, connectionErrorBody{
			ConnectionID: e.ConnectionID,
			Provider:     e.Provider,
			Error:        e.Err.Error(),
		})
	}
	if gen.Run != nil {
		resp.RunID = gen.Run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return
	}
	f := filterFrom(r)
	signals, err := s.svc.Signals(r.Context(), userID(r), store.SignalQuery{
		Type:     f.Type,
		Priority: f.Priority,
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error("list signals failed", "user_id", userID(r), "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, Count: len(signals), Signals: signals})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}
	if req.Platform == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PLATFORM", "CRM platform is required")
		return
	}

	res, err := s.svc.Connect(r.Context(), service.ConnectRequest{
		UserID:      userID(r),
		Provider:    req.Platform,
		Credentials: req.Credentials,
		Settings:    req.Settings,
	})
	switch {
	case errors.Is(err, adapter.ErrUnsupportedProvider):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_PLATFORM", err.Error())
		return
	case errors.Is(err, adapter.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "INVALID_CREDENTIALS", err.Error())
		return
	case err != nil:
		s.logger.Error("crm connect failed", "user_id", userID(r), "platform", req.Platform, "error", err)
		writeError(w, http.StatusInternalServerError, "CONNECT_FAILED", "An error occurred while connecting to the CRM")
		return
	}

	writeJSON(w, http.StatusOK, connectResponse{
		Success:      true,
		ConnectionID: res.Connection.ID,
		Platform:     res.Connection.Provider,
		Connected:    true,
		UserName:     res.Result.User.Name,
		OrgName:      res.Result.Organization.Name,
		Message:      "Successfully connected to " + res.Connection.Provider,
	})
}
