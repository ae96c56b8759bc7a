package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/tts-reader/internal/align"
	"github.com/example/tts-reader/internal/cache"
	"github.com/example/tts-reader/internal/config"
	"github.com/example/tts-reader/internal/job"
	"github.com/example/tts-reader/internal/synth"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// JobRunner executes a submitted job through to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, id string)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxScriptBytes int
	workers        int
	runTimeout     time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxScriptBytes: 120000,
		workers:        4,
		runTimeout:     15 * time.Minute,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxScriptBytes sets the maximum allowed script length in bytes for POST /v1/tts/jobs.
func WithMaxScriptBytes(n int) Option {
	return func(o *options) { o.maxScriptBytes = n }
}

// WithWorkers sets the maximum number of concurrently running jobs.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRunTimeout sets the deadline applied to each background job run.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) { o.runTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	store  *job.Store
	runner JobRunner
	opts   options
	sem    chan struct{} // semaphore bounding concurrent job runs
	log    *slog.Logger
}

// NewHandler returns an http.Handler serving /health and the /v1/tts/jobs API.
func NewHandler(store *job.Store, runner JobRunner, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		store:  store,
		runner: runner,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /v1/tts/jobs", h.handleSubmit)
	mux.HandleFunc("GET /v1/tts/jobs/{id}", h.handleStatus)
	mux.HandleFunc("GET /v1/tts/jobs/{id}/manifest", h.handleManifest)
	mux.HandleFunc("GET /v1/tts/jobs/{id}/audio", h.handleAudio)
	mux.HandleFunc("GET /v1/tts/jobs/{id}/timings", h.handleTimings)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type submitRequest struct {
	Script string   `json:"script"`
	Roles  []string `json:"roles"`
}

type submitResponse struct {
	JobID string    `json:"job_id"`
	State job.State `json:"state"`
}

func (h *handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Script) == "" {
		writeError(w, http.StatusBadRequest, "script field is required")
		return
	}
	if len(req.Script) > h.opts.maxScriptBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("script exceeds maximum size of %d bytes", h.opts.maxScriptBytes))
		return
	}
	if len(req.Roles) == 0 {
		writeError(w, http.StatusBadRequest, "at least one role is required")
		return
	}

	id, err := h.store.Create(job.Request{Script: req.Script, Roles: req.Roles})
	if err != nil {
		h.log.ErrorContext(r.Context(), "create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "job submitted",
		slog.String("job_id", id),
		slog.Int("script_bytes", len(req.Script)),
		slog.Int("roles", len(req.Roles)),
	)

	// The job outlives this request; its context is detached from r.Context().
	go func() {
		if h.sem != nil {
			h.sem <- struct{}{}
			defer func() { <-h.sem }()
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.runTimeout)
		defer cancel()
		h.runner.Run(ctx, id)
	}()

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, State: job.StatePending})
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Status(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) handleManifest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.store.Status(id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch rec.State {
	case job.StateReady:
	case job.StateFailed:
		msg := rec.Error
		if msg == "" {
			msg = "job failed"
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	default:
		writeError(w, http.StatusConflict, "job is not ready: "+string(rec.State))
		return
	}

	m, err := h.store.Manifest(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.store.Exists(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	path := h.store.AudioPath(id)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusConflict, "audio is not available yet")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (h *handler) handleTimings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.store.Exists(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	path := h.store.TimingsPath(id)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusConflict, "timings are not available yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the job pipeline and HTTP handler into a net/http.Server
// with graceful shutdown.
type Server struct {
	cfg             *config.Config
	log             *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg *config.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:             cfg,
		log:             log,
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.EnsureDirs(); err != nil {
		return err
	}

	store, err := job.NewStore(s.cfg.JobsDir())
	if err != nil {
		return err
	}

	runner, err := s.buildRunner(store)
	if err != nil {
		return err
	}

	h := NewHandler(store, runner,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxScriptBytes(s.cfg.Server.MaxScriptBytes),
		WithRunTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithLogger(s.log),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("server listening", slog.String("addr", s.cfg.Server.ListenAddr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func (s *Server) buildRunner(store *job.Store) (*job.Runner, error) {
	timeout := time.Duration(s.cfg.Server.RequestTimeout) * time.Second

	client, err := synth.NewGoogleClient(s.cfg.Synth.Endpoint, s.cfg.Synth.APIKey, timeout)
	if err != nil {
		return nil, fmt.Errorf("initialize synthesis client: %w", err)
	}
	coord := synth.NewCoordinator(client, s.cfg.Synth, s.log)

	whisper := align.NewWhisperClient(s.cfg.Align.Endpoint, timeout)
	engine := align.NewEngine(whisper, s.cfg.Align, s.log)

	idx := cache.NewIndex(s.cfg.CacheDir())
	return job.NewRunner(store, s.cfg, coord, engine, idx, s.log), nil
}

// ProbeHTTP checks the /health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
