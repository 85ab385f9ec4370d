package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jumptrainer/internal/model"
	"jumptrainer/internal/observability"
	"jumptrainer/internal/scape"
	"jumptrainer/internal/script"
)

const (
	DefaultEpisodeBudget  = 60
	DefaultTicksPerSecond = 60

	StoppedMessage       = "Simulation stopped."
	BudgetReachedMessage = "Episode budget reached."
	idleMessage          = "Ready."
)

type RunConfig struct {
	EpisodeBudget  int
	TicksPerSecond int
	// Script only feeds the displayed signature. Empty uses the built-in template.
	Script string
	// Seed drives every random draw of the run. Zero picks a time based seed.
	Seed int64
}

func (c RunConfig) normalized() RunConfig {
	if c.EpisodeBudget <= 0 {
		c.EpisodeBudget = DefaultEpisodeBudget
	}
	if c.TicksPerSecond <= 0 {
		c.TicksPerSecond = DefaultTicksPerSecond
	}
	if c.Script == "" {
		c.Script = script.DefaultTemplate
	}
	return c
}

type Options struct {
	Source   TickSource
	Clock    clock.Clock
	Recorder Recorder
	Logger   *zap.Logger
}

// Driver owns the run lifecycle and the tick counters. A single goroutine per
// run delivers ticks; every tick mutates the world under mu and publishes a
// fresh snapshot.
type Driver struct {
	source   TickSource
	clock    clock.Clock
	recorder Recorder
	logger   *zap.Logger

	// lifecycle serializes Start and Stop so a run is fully torn down
	// before the next one begins.
	lifecycle sync.Mutex

	mu           sync.Mutex
	status       Status
	runID        string
	cfg          RunConfig
	signature    int
	agentCount   int
	startedAt    time.Time
	tick         int
	episode      int
	message      string
	world        *scape.World
	rng          *rand.Rand
	episodeStats scape.StepStats
	history      []model.EpisodeSummary
	loop         *runLoop
	done         chan struct{}
	version      uint64

	current atomic.Pointer[Snapshot]

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

type runLoop struct {
	quit   chan struct{}
	exited chan struct{}
	stop   func()
}

func (l *runLoop) halt() {
	l.stop()
	close(l.quit)
}

func NewDriver(opts Options) *Driver {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Source == nil {
		opts.Source = ClockSource{Clock: opts.Clock}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	d := &Driver{
		source:   opts.Source,
		clock:    opts.Clock,
		recorder: opts.Recorder,
		logger:   opts.Logger.Named("driver"),
		message:  idleMessage,
		subs:     make(map[int]chan Snapshot),
	}
	d.mu.Lock()
	d.publishLocked()
	d.mu.Unlock()
	return d
}

// Start tears down any in-flight run and begins a new one. Out of range
// values are clamped, never rejected. It returns the new run id.
func (d *Driver) Start(agentCount int, cfg RunConfig) string {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.halt(StoppedMessage)

	cfg = cfg.normalized()
	if cfg.Seed == 0 {
		cfg.Seed = d.clock.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	world := scape.NewWorld(agentCount, rng)

	ticks, stop := d.source.Start(cfg.TicksPerSecond)
	loop := &runLoop{
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		stop:   stop,
	}

	d.mu.Lock()
	d.status = StatusRunning
	d.runID = uuid.NewString()
	d.cfg = cfg
	d.signature = script.Signature(cfg.Script)
	d.agentCount = len(world.Agents)
	d.startedAt = d.clock.Now()
	d.tick = 0
	d.episode = 0
	d.world = world
	d.rng = rng
	d.episodeStats = scape.StepStats{}
	d.history = nil
	d.loop = loop
	d.done = make(chan struct{})
	d.message = script.LoadedMessage(d.signature)
	d.publishLocked()
	runID := d.runID
	d.logger.Info("run started",
		zap.String("run_id", runID),
		zap.Int("agents", d.agentCount),
		zap.Int("episode_budget", cfg.EpisodeBudget),
		zap.Int("ticks_per_second", cfg.TicksPerSecond),
		zap.Int64("seed", cfg.Seed),
		zap.Int("signature", d.signature),
	)
	d.mu.Unlock()

	go d.run(loop, ticks)
	return runID
}

// Stop halts tick delivery and waits for an in-flight tick to finish.
// A running run becomes completed; any other status is kept. The message is
// always reset, so repeated calls are harmless.
func (d *Driver) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	d.halt(StoppedMessage)
}

func (d *Driver) halt(message string) {
	d.mu.Lock()
	report, loop := d.stopLocked(message)
	d.mu.Unlock()

	if loop != nil {
		<-loop.exited
	}
	d.record(report)
}

// stopLocked cancels future ticks without waiting for the loop goroutine,
// so it is safe to call from inside a tick. The final snapshot is published
// before done closes.
func (d *Driver) stopLocked(message string) (*RunReport, *runLoop) {
	loop := d.loop
	d.loop = nil
	if loop != nil {
		loop.halt()
	}
	d.message = message

	if d.status != StatusRunning {
		d.publishLocked()
		return nil, loop
	}
	d.status = StatusCompleted
	report := d.reportLocked()
	d.publishLocked()
	close(d.done)
	d.logger.Info("run completed",
		zap.String("run_id", d.runID),
		zap.Int("ticks", d.tick),
		zap.Int("episodes", d.episode),
		zap.Float64("mean_reward", d.world.MeanReward()),
		zap.String("reason", message),
	)
	return report, loop
}

func (d *Driver) run(loop *runLoop, ticks <-chan time.Time) {
	defer close(loop.exited)
	defer observability.Recover()
	for {
		select {
		case <-loop.quit:
			return
		case <-ticks:
			d.onTick(loop)
		}
	}
}

func (d *Driver) onTick(loop *runLoop) {
	d.mu.Lock()
	if d.loop != loop {
		d.mu.Unlock()
		return
	}
	report := d.tickLocked()
	d.mu.Unlock()
	d.record(report)
}

// step applies one tick outside the loop goroutine.
func (d *Driver) step() {
	d.mu.Lock()
	report := d.tickLocked()
	d.mu.Unlock()
	d.record(report)
}

func (d *Driver) tickLocked() *RunReport {
	if d.status != StatusRunning {
		return nil
	}

	d.tick++
	if d.tick%d.cfg.TicksPerSecond == 0 {
		d.episode++
		d.closeEpisodeLocked()
		if d.episode >= d.cfg.EpisodeBudget {
			report, _ := d.stopLocked(BudgetReachedMessage)
			return report
		}
	}

	d.episodeStats.Add(d.world.Advance(d.rng))
	d.message = fmt.Sprintf("Episode %02d/%02d • avg r=%.2f", d.episode, d.cfg.EpisodeBudget, d.world.MeanReward())
	d.publishLocked()
	return nil
}

// closeEpisodeLocked appends the summary of the ticks advanced since the
// previous episode boundary.
func (d *Driver) closeEpisodeLocked() {
	d.history = append(d.history, model.EpisodeSummary{
		Episode:       d.episode,
		Tick:          d.tick,
		MeanReward:    d.world.MeanReward(),
		MeanThreshold: d.world.MeanThreshold(),
		Successes:     d.episodeStats.Successes,
		Failures:      d.episodeStats.Failures,
		Jumps:         d.episodeStats.Jumps,
	})
	d.logger.Debug("episode closed",
		zap.String("run_id", d.runID),
		zap.Int("episode", d.episode),
		zap.Float64("mean_reward", d.world.MeanReward()),
		zap.Int("successes", d.episodeStats.Successes),
		zap.Int("failures", d.episodeStats.Failures),
	)
	d.episodeStats = scape.StepStats{}
}

func (d *Driver) publishLocked() {
	d.version++
	snap := &Snapshot{
		Version:        d.version,
		RunID:          d.runID,
		Status:         d.status,
		StatusLabel:    d.status.Label(),
		Episode:        d.episode,
		EpisodeBudget:  d.cfg.EpisodeBudget,
		Tick:           d.tick,
		TicksPerSecond: d.cfg.TicksPerSecond,
		Message:        d.message,
		Agents:         agentViews(d.world),
		Obstacles:      obstacleViews(d.world),
	}
	if d.world != nil {
		snap.MeanReward = d.world.MeanReward()
	}
	d.current.Store(snap)

	d.subsMu.Lock()
	for _, ch := range d.subs {
		view := snap.clone()
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
	d.subsMu.Unlock()
}

// Snapshot returns the latest published state. The returned value shares
// nothing with the live world.
func (d *Driver) Snapshot() Snapshot {
	return d.current.Load().clone()
}

// Subscribe returns a channel that always holds the newest snapshot not yet
// read. Older unread snapshots are replaced. The cancel func closes it.
func (d *Driver) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	d.subsMu.Lock()
	ch <- d.Snapshot()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subsMu.Lock()
			delete(d.subs, id)
			d.subsMu.Unlock()
			close(ch)
		})
	}
}

// Done is closed when the current run leaves the running state. Without a
// run it returns an already closed channel.
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return d.done
}

// Wait blocks until the current run completes or ctx ends.
func (d *Driver) Wait(ctx context.Context) error {
	select {
	case <-d.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the per-episode summaries of the current or last run.
func (d *Driver) History() []model.EpisodeSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.EpisodeSummary, len(d.history))
	copy(out, d.history)
	return out
}

// Report describes the current or last run. ok is false before the first Start.
func (d *Driver) Report() (RunReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.world == nil {
		return RunReport{}, false
	}
	return *d.reportLocked(), true
}

func (d *Driver) reportLocked() *RunReport {
	run := model.RunRecord{
		ID:             d.runID,
		StartedAtUTC:   d.startedAt.UTC().Format(time.RFC3339Nano),
		Status:         d.status.String(),
		AgentCount:     d.agentCount,
		EpisodeBudget:  d.cfg.EpisodeBudget,
		TicksPerSecond: d.cfg.TicksPerSecond,
		Seed:           d.cfg.Seed,
		Signature:      d.signature,
		Ticks:          d.tick,
		Episodes:       d.episode,
		MeanReward:     d.world.MeanReward(),
		Message:        d.message,
		Agents:         make([]model.AgentResult, 0, len(d.world.Agents)),
	}
	if d.status == StatusCompleted {
		run.FinishedAtUTC = d.clock.Now().UTC().Format(time.RFC3339Nano)
	}
	for _, a := range d.world.Agents {
		run.Agents = append(run.Agents, model.AgentResult{
			ID:        a.ID,
			Name:      a.Name,
			Lane:      a.Lane,
			Threshold: a.Threshold,
			Rate:      a.Rate,
			Reward:    a.Reward,
			Outcome:   a.Outcome.String(),
		})
	}
	episodes := make([]model.EpisodeSummary, len(d.history))
	copy(episodes, d.history)
	return &RunReport{Run: run, Episodes: episodes}
}

func (d *Driver) record(report *RunReport) {
	if report == nil || d.recorder == nil {
		return
	}
	d.recorder.RecordRun(*report)
}
