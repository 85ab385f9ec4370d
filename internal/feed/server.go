package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"jumptrainer/internal/observability"
	"jumptrainer/internal/platform"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver is the part of platform.Driver the feed needs.
type Driver interface {
	Start(agentCount int, cfg platform.RunConfig) string
	Stop()
	Snapshot() platform.Snapshot
	Subscribe() (<-chan platform.Snapshot, func())
}

// Defaults fill start requests that omit a field.
type Defaults struct {
	Agents         int
	EpisodeBudget  int
	TicksPerSecond int
	Script         string
}

type Options struct {
	Addr     string
	MaxFPS   int
	Defaults Defaults
	Logger   *zap.Logger
}

// StartRequest is accepted by POST /start and as a websocket message with
// type "start".
type StartRequest struct {
	Type           string `json:"type,omitempty"`
	Agents         *int   `json:"agents,omitempty"`
	Episodes       *int   `json:"episodes,omitempty"`
	TicksPerSecond *int   `json:"ticks_per_second,omitempty"`
	Script         string `json:"script,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

type StartResponse struct {
	RunID string `json:"run_id"`
}

type Server struct {
	driver   Driver
	hub      *Hub
	defaults Defaults
	maxFPS   int
	logger   *zap.Logger
	server   *http.Server
}

func NewServer(driver Driver, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxFPS <= 0 {
		opts.MaxFPS = 30
	}
	logger := opts.Logger.Named("feed")
	s := &Server{
		driver:   driver,
		defaults: opts.Defaults,
		maxFPS:   opts.MaxFPS,
		logger:   logger,
	}
	s.hub = NewHub(func() ([]byte, error) { return json.Marshal(driver.Snapshot()) }, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/ws", s.handleWS)
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe listens on the configured address and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub, the snapshot pump and the HTTP server on ln. It returns
// nil after a clean shutdown triggered by ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.pump(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("feed listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// pump forwards the newest snapshot to the hub at most MaxFPS times per
// second. Intermediate snapshots are skipped.
func (s *Server) pump(ctx context.Context) {
	defer observability.Recover()
	updates, cancel := s.driver.Subscribe()
	defer cancel()
	limiter := rate.NewLimiter(rate.Limit(s.maxFPS), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("marshal snapshot", zap.Error(err))
				continue
			}
			s.hub.Broadcast(data)
		}
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.driver.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	var req StartRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	runID := s.start(req)
	writeJSON(w, http.StatusAccepted, StartResponse{RunID: runID})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.driver.Stop()
	writeJSON(w, http.StatusAccepted, s.driver.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, s.handleControlMessage)
}

// handleControlMessage accepts {"type":"start",...} and {"type":"stop"}.
// Unknown or malformed messages are ignored.
func (s *Server) handleControlMessage(message []byte) {
	var req StartRequest
	if err := json.Unmarshal(message, &req); err != nil {
		s.logger.Debug("ignore malformed control message", zap.Error(err))
		return
	}
	switch req.Type {
	case "start":
		s.start(req)
	case "stop":
		s.driver.Stop()
	default:
		s.logger.Debug("ignore control message", zap.String("type", req.Type))
	}
}

func (s *Server) start(req StartRequest) string {
	agents := s.defaults.Agents
	if req.Agents != nil {
		agents = *req.Agents
	}
	cfg := platform.RunConfig{
		EpisodeBudget:  s.defaults.EpisodeBudget,
		TicksPerSecond: s.defaults.TicksPerSecond,
		Script:         s.defaults.Script,
		Seed:           req.Seed,
	}
	if req.Episodes != nil {
		cfg.EpisodeBudget = *req.Episodes
	}
	if req.TicksPerSecond != nil {
		cfg.TicksPerSecond = *req.TicksPerSecond
	}
	if req.Script != "" {
		cfg.Script = req.Script
	}
	runID := s.driver.Start(agents, cfg)
	s.logger.Info("run requested", zap.String("run_id", runID), zap.Int("agents", agents))
	return runID
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
