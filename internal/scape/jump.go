package scape

import (
	"fmt"
	"math"
)

const (
	MaxAgents        = 15
	ObstaclePoolSize = 3

	ObstacleStep          = 0.007
	ObstacleWidth         = 0.05
	ObstacleInitialHeight = 0.18
	MinRecycleGap         = 0.2
	MaxRecycleGap         = 0.4
	MinObstacleHeight     = 0.12
	MaxObstacleHeight     = 0.22

	JumpIncrement = 0.06
	JumpHeight    = 0.22

	// Obstacles whose trailing edge is behind lane-TrackingMargin are no
	// longer candidates.
	TrackingMargin  = 0.02
	ClearanceMargin = 0.02

	MinThreshold      = 0.08
	MaxThreshold      = 0.40
	FailurePenalty    = 4.0
	MinAdaptationRate = 0.001
	MaxAdaptationRate = 0.01
)

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "pending"
	}
}

func (o Outcome) Symbol() string {
	switch o {
	case OutcomeSuccess:
		return "✓"
	case OutcomeFailure:
		return "✕"
	default:
		return "…"
	}
}

// NoObstacle marks an agent that is not tracking anything. Obstacle ids
// start at 1.
const NoObstacle = 0

type Agent struct {
	ID           int
	Name         string
	Lane         float64
	JumpProgress float64
	Jumping      bool
	Threshold    float64
	Rate         float64
	Reward       float64
	Outcome      Outcome
	TrackedID    int
}

func (a Agent) VerticalOffset() float64 {
	if !a.Jumping {
		return 0
	}
	return math.Sin(math.Pi*clamp(a.JumpProgress, 0, 1)) * JumpHeight
}

type Obstacle struct {
	ID       int
	Position float64
	Width    float64
	Height   float64
}

func (o Obstacle) trailingEdge() float64 {
	return o.Position + o.Width
}

type World struct {
	Agents    []Agent
	Obstacles []Obstacle
}

// StepStats counts the events of a single Advance call.
type StepStats struct {
	Successes int
	Failures  int
	Jumps     int
}

func (s *StepStats) Add(other StepStats) {
	s.Successes += other.Successes
	s.Failures += other.Failures
	s.Jumps += other.Jumps
}

func ClampAgentCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAgents {
		return MaxAgents
	}
	return n
}

// NewWorld builds the agent set and a fresh obstacle pool. Adaptation rates
// are drawn from src in agent order.
func NewWorld(agentCount int, src Source) *World {
	count := ClampAgentCount(agentCount)
	w := &World{
		Agents:    make([]Agent, 0, count),
		Obstacles: make([]Obstacle, 0, ObstaclePoolSize),
	}
	for i := 0; i < count; i++ {
		w.Agents = append(w.Agents, Agent{
			ID:           i + 1,
			Name:         fmt.Sprintf("AG-%02d", i+1),
			Lane:         0.15 + float64(i)*0.03,
			JumpProgress: 1,
			Threshold:    clamp(0.28+float64(i)*0.01, MinThreshold, MaxThreshold),
			Rate:         uniform(src, MinAdaptationRate, MaxAdaptationRate),
			Outcome:      OutcomePending,
			TrackedID:    NoObstacle,
		})
	}
	for i := 0; i < ObstaclePoolSize; i++ {
		w.Obstacles = append(w.Obstacles, Obstacle{
			ID:       i + 1,
			Position: 0.7 + float64(i)*0.2,
			Width:    ObstacleWidth,
			Height:   ObstacleInitialHeight,
		})
	}
	return w
}

func (w *World) Clone() *World {
	out := &World{
		Agents:    make([]Agent, len(w.Agents)),
		Obstacles: make([]Obstacle, len(w.Obstacles)),
	}
	copy(out.Agents, w.Agents)
	copy(out.Obstacles, w.Obstacles)
	return out
}

func (w *World) MeanReward() float64 {
	if len(w.Agents) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range w.Agents {
		total += a.Reward
	}
	return total / float64(len(w.Agents))
}

func (w *World) MeanThreshold() float64 {
	if len(w.Agents) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range w.Agents {
		total += a.Threshold
	}
	return total / float64(len(w.Agents))
}

// Advance applies one tick: obstacles move and recycle first, then every
// agent reacts to its closest upcoming obstacle.
func (w *World) Advance(src Source) StepStats {
	w.advanceObstacles(src)

	var stats StepStats
	for i := range w.Agents {
		next, events := w.advanceAgent(w.Agents[i])
		w.Agents[i] = next
		stats.Add(events)
	}
	return stats
}

func (w *World) advanceObstacles(src Source) {
	for i := range w.Obstacles {
		o := &w.Obstacles[i]
		o.Position -= ObstacleStep
		if o.trailingEdge() < 0 {
			gap := uniform(src, MinRecycleGap, MaxRecycleGap)
			o.Position = 1 + gap
			o.Height = uniform(src, MinObstacleHeight, MaxObstacleHeight)
		}
	}
}

func (w *World) candidateFor(agent Agent) (Obstacle, bool) {
	var (
		best  Obstacle
		found bool
	)
	for _, o := range w.Obstacles {
		if o.trailingEdge() <= agent.Lane-TrackingMargin {
			continue
		}
		if !found || o.Position < best.Position {
			best = o
			found = true
		}
	}
	return best, found
}

func (w *World) advanceAgent(agent Agent) (Agent, StepStats) {
	var stats StepStats

	obstacle, ok := w.candidateFor(agent)
	if !ok {
		return agent, stats
	}

	if agent.TrackedID != obstacle.ID {
		agent.TrackedID = obstacle.ID
		agent.Outcome = OutcomePending
	}

	distance := obstacle.Position - agent.Lane
	if !agent.Jumping && distance < agent.Threshold {
		agent.Jumping = true
		agent.JumpProgress = 0
		stats.Jumps++
	}

	if agent.Jumping {
		agent.JumpProgress += JumpIncrement
		if agent.JumpProgress >= 1 {
			agent.JumpProgress = 1
			agent.Jumping = false
		}
	}

	overlaps := obstacle.Position < agent.Lane && agent.Lane < obstacle.trailingEdge()
	collides := overlaps && agent.VerticalOffset() < obstacle.Height+ClearanceMargin

	if agent.TrackedID != obstacle.ID {
		return agent, stats
	}
	switch {
	case obstacle.trailingEdge() < agent.Lane:
		agent.Reward++
		agent.Outcome = OutcomeSuccess
		agent.Threshold = math.Max(MinThreshold, agent.Threshold-agent.Rate)
		agent.TrackedID = NoObstacle
		stats.Successes++
	case collides:
		agent.Reward--
		agent.Outcome = OutcomeFailure
		agent.Threshold = math.Min(MaxThreshold, agent.Threshold+agent.Rate*FailurePenalty)
		agent.TrackedID = NoObstacle
		stats.Failures++
	}
	return agent, stats
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
