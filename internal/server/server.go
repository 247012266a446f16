package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/config"
	"github.com/coderoomhq/coderoom/internal/executor"
	"github.com/coderoomhq/coderoom/internal/hub"
	"github.com/coderoomhq/coderoom/internal/limiter"
	"github.com/coderoomhq/coderoom/internal/queue"
	"github.com/coderoomhq/coderoom/internal/registry"
	"github.com/coderoomhq/coderoom/internal/sandbox"
	"github.com/coderoomhq/coderoom/internal/worker"
)

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	registry    *registry.Registry
	hub         *hub.Hub
	queue       *queue.Manager
	workers     []*worker.Worker
	reaper      *registry.Reaper
	rateLimiter *limiter.RateLimiter
	startedAt   time.Time
	cancelFunc  context.CancelFunc
}

func New(conf *config.Config, logger *zerolog.Logger) (*Server, error) {
	reg := registry.New(logger)

	sb := sandbox.New(sandbox.Config{
		Timeout:     conf.Execution.Timeout,
		OutputLimit: conf.Execution.OutputLimit,
	}, logger)

	exec := executor.New(sb)
	q := queue.NewManager(conf.Execution.QueueCapacity)

	workers := make([]*worker.Worker, conf.Execution.Workers)
	for i := range workers {
		workers[i] = worker.NewWorker(i, exec, q, logger)
	}

	rl := limiter.NewRateLimiter(conf.Limiter.GlobalRPS, conf.Limiter.PerIPRPS, conf.Limiter.PerIPBurst)
	rl.StartCleanup(5 * time.Minute)

	h := hub.New(hub.Options{
		Registry:       reg,
		Queue:          q,
		Logger:         logger,
		AllowedOrigins: conf.Server.AllowedOrigins,
	})

	s := &Server{
		conf:        conf,
		logger:      logger,
		registry:    reg,
		hub:         h,
		queue:       q,
		workers:     workers,
		reaper:      registry.NewReaper(reg, conf.Rooms.SweepInterval, conf.Rooms.IdleTTL, logger),
		rateLimiter: rl,
		startedAt:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /rooms/{id}", s.handleRoomInfo)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws", rl.Middleware(h.ServeWS))

	s.httpServer = &http.Server{
		Addr:         ":" + conf.Server.Port,
		Handler:      mux,
		ReadTimeout:  conf.Server.ReadTimeout,
		WriteTimeout: conf.Server.WriteTimeout,
		IdleTimeout:  conf.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("port", s.conf.Server.Port).
		Int("workers", len(s.workers)).
		Msg("starting server")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	go s.hub.Run(ctx)
	for _, w := range s.workers {
		go w.Start(ctx)
	}
	s.reaper.Start(ctx)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"roomCount":       s.registry.RoomCount(),
		"connectionCount": s.hub.ConnectionCount(),
		"uptime":          int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleRoomInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, ok := s.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":               state.ID,
		"participantCount": len(state.Participants),
		"language":         state.Language.String(),
		"createdAt":        state.CreatedAt,
		"lastActivity":     state.LastActivity,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
