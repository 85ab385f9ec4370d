package jumptrainer

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jumptrainer/internal/model"
	"jumptrainer/internal/platform"
	"jumptrainer/internal/scape"
	"jumptrainer/internal/stats"
	"jumptrainer/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultDBPath     = "jumptrainer.db"
	defaultAgents     = 4
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *zap.Logger
}

type Client struct {
	store      storage.Store
	exportsDir string
	logger     *zap.Logger
}

type RunRequest struct {
	Agents         int
	Episodes       int
	TicksPerSecond int
	Script         string
	Seed           int64
	// Paced runs at TicksPerSecond on Clock (wall clock when nil). Otherwise
	// ticks are delivered back to back.
	Paced bool
	Clock clock.Clock
	// Progress receives the newest snapshot whenever the consumer keeps up;
	// intermediate snapshots may be skipped.
	Progress func(platform.Snapshot)
}

type RunSummary struct {
	Run      model.RunRecord
	Episodes []model.EpisodeSummary
	Best     model.AgentResult
}

type RunsRequest struct {
	Limit int
}

type EpisodesRequest struct {
	RunID  string
	Latest bool
	// Limit keeps the last N episodes. Non-positive returns all.
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type EvaluateRequest struct {
	Agents          int
	Episodes        int
	TicksPerEpisode int
	Seeds           []int64
	Workers         int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:      store,
		exportsDir: exportsDir,
		logger:     logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Recorder persists runs finished by a long lived driver, such as the one
// behind the snapshot feed.
func (c *Client) Recorder() platform.Recorder {
	return platform.StoreRecorder{Store: c.store, Logger: c.logger.Named("recorder")}
}

// Run executes one simulation to completion and stores it. A canceled ctx
// stops the run early; the stopped run is still stored.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	if req.Agents == 0 {
		req.Agents = defaultAgents
	}

	var (
		report   platform.RunReport
		saveErr  error
		recorded = make(chan struct{})
	)
	opts := platform.Options{
		Clock:  req.Clock,
		Logger: c.logger,
		Recorder: platform.RecorderFunc(func(r platform.RunReport) {
			report = r
			saveErr = platform.SaveReport(context.WithoutCancel(ctx), c.store, r)
			close(recorded)
		}),
	}
	if !req.Paced {
		opts.Source = platform.FreeRunSource{}
	}
	driver := platform.NewDriver(opts)
	defer driver.Stop()

	driver.Start(req.Agents, platform.RunConfig{
		EpisodeBudget:  req.Episodes,
		TicksPerSecond: req.TicksPerSecond,
		Script:         req.Script,
		Seed:           req.Seed,
	})
	updates, unsubscribe := driver.Subscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer unsubscribe()
		err := driver.Wait(gctx)
		if err != nil {
			driver.Stop()
		}
		return err
	})
	g.Go(func() error {
		for snap := range updates {
			if req.Progress != nil {
				req.Progress(snap)
			}
		}
		return nil
	})
	runErr := g.Wait()
	<-recorded

	if saveErr != nil {
		return RunSummary{}, fmt.Errorf("store run %s: %w", report.Run.ID, saveErr)
	}
	if runErr != nil {
		return RunSummary{}, runErr
	}
	summary := RunSummary{Run: report.Run, Episodes: report.Episodes}
	summary.Best, _ = stats.BestAgent(report.Run)
	return summary, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx, req.Limit)
}

// Show returns a stored run. An empty runID selects the newest run.
func (c *Client) Show(ctx context.Context, runID string) (model.RunRecord, error) {
	id, err := c.resolveRunID(ctx, runID, runID == "")
	if err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, id)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

func (c *Client) Episodes(ctx context.Context, req EpisodesRequest) ([]model.EpisodeSummary, error) {
	id, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	episodes, ok, err := c.store.GetEpisodes(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if req.Limit > 0 && len(episodes) > req.Limit {
		episodes = episodes[len(episodes)-req.Limit:]
	}
	return episodes, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	id, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	run, err := c.Show(ctx, id)
	if err != nil {
		return ExportSummary{}, err
	}
	episodes, _, err := c.store.GetEpisodes(ctx, id)
	if err != nil {
		return ExportSummary{}, err
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := stats.WriteRunArtifacts(outDir, stats.RunArtifacts{Run: run, Episodes: episodes})
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: id, Directory: dir}, nil
}

// Evaluate runs the headless world once per seed on a bounded worker pool.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (stats.EvaluationStats, error) {
	if len(req.Seeds) == 0 {
		return stats.EvaluationStats{}, errors.New("at least one seed is required")
	}
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	agents := req.Agents
	if agents == 0 {
		agents = defaultAgents
	}
	s := scape.JumpScape{Agents: agents, Episodes: req.Episodes, TicksPerEpisode: req.TicksPerEpisode}

	results := make([]stats.SeedResult, len(req.Seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seed := range req.Seeds {
		g.Go(func() error {
			fitness, trace, err := s.Evaluate(gctx, seed)
			if err != nil {
				return fmt.Errorf("evaluate seed %d: %w", seed, err)
			}
			successes, _ := trace.Get("successes")
			failures, _ := trace.Get("failures")
			best, _ := trace.Get("best_agent")
			results[i] = stats.SeedResult{
				Seed:      seed,
				Fitness:   float64(fitness),
				Successes: successes.(int),
				Failures:  failures.(int),
				BestAgent: best.(string),
			}
			c.logger.Debug("seed evaluated", zap.Int64("seed", seed), zap.String("trace", scape.FormatTrace(trace)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats.EvaluationStats{}, err
	}
	return stats.BuildEvaluationStats(results), nil
}

// Reset deletes every stored run.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" && !latest {
		return runID, nil
	}
	if runID != "" {
		return "", errors.New("use either a run id or latest, not both")
	}
	if !latest {
		return "", errors.New("run id is required")
	}
	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
	}
	return runs[0].ID, nil
}
