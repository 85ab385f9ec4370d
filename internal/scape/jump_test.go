package scape

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqSource struct {
	values []float64
	next   int
}

func (s *seqSource) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func singleAgentWorld(agent Agent, obstacles ...Obstacle) *World {
	return &World{Agents: []Agent{agent}, Obstacles: obstacles}
}

func TestNewWorldInitialLayout(t *testing.T) {
	src := &seqSource{values: []float64{0, 0.5, 0.999}}
	w := NewWorld(4, src)

	require.Len(t, w.Agents, 4)
	require.Len(t, w.Obstacles, ObstaclePoolSize)

	assert.Equal(t, "AG-01", w.Agents[0].Name)
	assert.Equal(t, "AG-04", w.Agents[3].Name)
	assert.InDelta(t, 0.15, w.Agents[0].Lane, 1e-12)
	assert.InDelta(t, 0.24, w.Agents[3].Lane, 1e-12)
	assert.InDelta(t, 0.28, w.Agents[0].Threshold, 1e-12)
	assert.InDelta(t, 0.31, w.Agents[3].Threshold, 1e-12)
	assert.InDelta(t, MinAdaptationRate, w.Agents[0].Rate, 1e-12)
	assert.InDelta(t, 0.0055, w.Agents[1].Rate, 1e-12)

	for i, a := range w.Agents {
		assert.Equal(t, i+1, a.ID)
		assert.Equal(t, 1.0, a.JumpProgress)
		assert.False(t, a.Jumping)
		assert.Equal(t, OutcomePending, a.Outcome)
		assert.Equal(t, NoObstacle, a.TrackedID)
	}
	for i, o := range w.Obstacles {
		assert.Equal(t, i+1, o.ID)
		assert.InDelta(t, 0.7+float64(i)*0.2, o.Position, 1e-12)
		assert.Equal(t, ObstacleWidth, o.Width)
		assert.Equal(t, ObstacleInitialHeight, o.Height)
	}
}

func TestNewWorldClampsAgentCountAndThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	assert.Len(t, NewWorld(0, rng).Agents, 1)
	assert.Len(t, NewWorld(-3, rng).Agents, 1)

	w := NewWorld(40, rng)
	require.Len(t, w.Agents, MaxAgents)
	for _, a := range w.Agents {
		assert.GreaterOrEqual(t, a.Threshold, MinThreshold)
		assert.LessOrEqual(t, a.Threshold, MaxThreshold)
		assert.GreaterOrEqual(t, a.Rate, MinAdaptationRate)
		assert.LessOrEqual(t, a.Rate, MaxAdaptationRate)
	}
	assert.Equal(t, MaxThreshold, w.Agents[14].Threshold)
}

func TestAgentVerticalOffset(t *testing.T) {
	assert.Equal(t, 0.0, Agent{JumpProgress: 0.5}.VerticalOffset())
	assert.InDelta(t, JumpHeight, Agent{Jumping: true, JumpProgress: 0.5}.VerticalOffset(), 1e-12)
	assert.InDelta(t, 0, Agent{Jumping: true, JumpProgress: 0}.VerticalOffset(), 1e-12)
	assert.InDelta(t, 0, Agent{Jumping: true, JumpProgress: 1.4}.VerticalOffset(), 1e-12)
}

func TestAdvanceStartsJumpWhenObstacleCrossesThreshold(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Name: "AG-01", Lane: 0, JumpProgress: 1, Threshold: 0.30, Rate: 0.005},
		Obstacle{ID: 1, Position: 0.35, Width: 0.05, Height: 0.18},
	)
	src := &seqSource{values: []float64{0.5}}

	jumped := false
	for tick := 1; tick <= 20; tick++ {
		w.Advance(src)
		position := w.Obstacles[0].Position
		if position < 0.30 {
			require.True(t, w.Agents[0].Jumping, "tick %d: obstacle at %.3f should trigger a jump", tick, position)
			assert.Equal(t, 8, tick)
			jumped = true
			break
		}
		require.False(t, w.Agents[0].Jumping, "tick %d: obstacle at %.3f is beyond the threshold", tick, position)
	}
	assert.True(t, jumped)
}

func TestAdvanceClampsJumpProgress(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 0.97, Jumping: true, Threshold: 0.30, Rate: 0.005},
		Obstacle{ID: 1, Position: 0.9, Width: 0.05, Height: 0.18},
	)

	w.Advance(&seqSource{values: []float64{0.5}})

	assert.Equal(t, 1.0, w.Agents[0].JumpProgress)
	assert.False(t, w.Agents[0].Jumping)
}

func TestAdvanceRewardsPass(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 1, Threshold: 0.30, Rate: 0.01, TrackedID: 1},
		Obstacle{ID: 1, Position: 0.095, Width: 0.05, Height: 0.18},
	)

	stats := w.Advance(&seqSource{values: []float64{0.5}})

	a := w.Agents[0]
	assert.Equal(t, 1.0, a.Reward)
	assert.Equal(t, OutcomeSuccess, a.Outcome)
	assert.InDelta(t, 0.29, a.Threshold, 1e-12)
	assert.Equal(t, NoObstacle, a.TrackedID)
	assert.Equal(t, 1, stats.Successes)
}

func TestAdvancePassRespectsThresholdFloor(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 1, Threshold: 0.085, Rate: 0.01},
		Obstacle{ID: 1, Position: 0.095, Width: 0.05, Height: 0.18},
	)

	w.Advance(&seqSource{values: []float64{0.5}})

	assert.Equal(t, MinThreshold, w.Agents[0].Threshold)
}

func TestAdvancePenalizesCollision(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 1, Threshold: MinThreshold, Rate: 0.01},
		Obstacle{ID: 1, Position: 0.12, Width: 0.05, Height: 0.18},
	)

	stats := w.Advance(&seqSource{values: []float64{0.5}})

	a := w.Agents[0]
	assert.Equal(t, -1.0, a.Reward)
	assert.Equal(t, OutcomeFailure, a.Outcome)
	assert.InDelta(t, 0.12, a.Threshold, 1e-12)
	assert.Equal(t, NoObstacle, a.TrackedID)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Jumps)
}

func TestAdvanceCollisionRespectsThresholdCeiling(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 1, Threshold: 0.39, Rate: 0.01},
		Obstacle{ID: 1, Position: 0.12, Width: 0.05, Height: 0.18},
	)

	w.Advance(&seqSource{values: []float64{0.5}})

	assert.Equal(t, MaxThreshold, w.Agents[0].Threshold)
}

func TestAdvanceHighJumpClearsObstacle(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 0.44, Jumping: true, Threshold: 0.30, Rate: 0.01, TrackedID: 1},
		Obstacle{ID: 1, Position: 0.12, Width: 0.05, Height: 0.18},
	)

	w.Advance(&seqSource{values: []float64{0.5}})

	a := w.Agents[0]
	assert.Equal(t, 0.0, a.Reward)
	assert.Equal(t, OutcomePending, a.Outcome)
	assert.Equal(t, 1, a.TrackedID)
}

func TestAdvanceSwitchesTrackingAndResetsOutcome(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 1, Threshold: 0.30, Rate: 0.01, Outcome: OutcomeFailure, TrackedID: 2},
		Obstacle{ID: 1, Position: 0.9, Width: 0.05, Height: 0.18},
		Obstacle{ID: 2, Position: 0.01, Width: 0.05, Height: 0.18},
	)

	w.Advance(&seqSource{values: []float64{0.5}})

	a := w.Agents[0]
	assert.Equal(t, 1, a.TrackedID)
	assert.Equal(t, OutcomePending, a.Outcome)
}

func TestAdvancePicksClosestUpcomingObstacle(t *testing.T) {
	w := singleAgentWorld(
		Agent{ID: 1, Lane: 0.15, JumpProgress: 1, Threshold: 0.10, Rate: 0.01},
		Obstacle{ID: 1, Position: 0.9, Width: 0.05, Height: 0.18},
		Obstacle{ID: 2, Position: 0.5, Width: 0.05, Height: 0.18},
		Obstacle{ID: 3, Position: 0.7, Width: 0.05, Height: 0.18},
	)

	w.Advance(&seqSource{values: []float64{0.5}})

	assert.Equal(t, 2, w.Agents[0].TrackedID)
}

func TestAdvanceSkipsAgentWithoutCandidate(t *testing.T) {
	agent := Agent{ID: 1, Lane: 0.6, JumpProgress: 1, Threshold: 0.30, Rate: 0.01, Outcome: OutcomeSuccess}
	w := singleAgentWorld(agent, Obstacle{ID: 1, Position: 0.2, Width: 0.05, Height: 0.18})

	stats := w.Advance(&seqSource{values: []float64{0.5}})

	assert.Equal(t, agent, w.Agents[0])
	assert.Equal(t, StepStats{}, stats)
}

func TestAdvanceRecyclesObstacle(t *testing.T) {
	w := &World{Obstacles: []Obstacle{{ID: 1, Position: -0.045, Width: 0.05, Height: 0.18}}}

	w.Advance(&seqSource{values: []float64{0, 0.999}})

	o := w.Obstacles[0]
	assert.Equal(t, 1, o.ID)
	assert.InDelta(t, 1.2, o.Position, 1e-12)
	assert.GreaterOrEqual(t, o.Height, MinObstacleHeight)
	assert.LessOrEqual(t, o.Height, MaxObstacleHeight)
}

func TestAdvanceInvariantsHold(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		w := NewWorld(MaxAgents, rng)

		for tick := 0; tick < 4000; tick++ {
			before := w.Clone()
			w.Advance(rng)

			for i, o := range w.Obstacles {
				prev := before.Obstacles[i]
				if prev.Position-ObstacleStep+prev.Width < 0 {
					require.GreaterOrEqual(t, o.Position, 1+MinRecycleGap, "seed %d tick %d", seed, tick)
				}
				require.GreaterOrEqual(t, o.Height, MinObstacleHeight)
				require.LessOrEqual(t, o.Height, MaxObstacleHeight)
			}
			for _, a := range w.Agents {
				require.GreaterOrEqual(t, a.JumpProgress, 0.0)
				require.LessOrEqual(t, a.JumpProgress, 1.0)
				require.GreaterOrEqual(t, a.Threshold, MinThreshold, "seed %d tick %d %s", seed, tick, a.Name)
				require.LessOrEqual(t, a.Threshold, MaxThreshold, "seed %d tick %d %s", seed, tick, a.Name)
				require.False(t, math.IsNaN(a.Reward))
			}
		}
	}
}

func TestAdvanceIsDeterministic(t *testing.T) {
	run := func() *World {
		rng := rand.New(rand.NewSource(42))
		w := NewWorld(6, rng)
		for i := 0; i < 2500; i++ {
			w.Advance(rng)
		}
		return w
	}

	first := run()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("worlds diverged (-first +second):\n%s", diff)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	w := NewWorld(2, &seqSource{values: []float64{0.5}})
	c := w.Clone()
	c.Agents[0].Reward = 10
	c.Obstacles[0].Position = -1

	assert.Equal(t, 0.0, w.Agents[0].Reward)
	assert.InDelta(t, 0.7, w.Obstacles[0].Position, 1e-12)
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "…", OutcomePending.Symbol())
	assert.Equal(t, "✓", OutcomeSuccess.Symbol())
	assert.Equal(t, "✕", OutcomeFailure.Symbol())
	assert.Equal(t, "failure", OutcomeFailure.String())
}
