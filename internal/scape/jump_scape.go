package scape

import (
	"context"
	"math/rand"
)

// JumpScape runs the obstacle world without a clock. Fitness is the mean
// cumulative reward across agents at the end of the run. Like the driver, the
// tick that exhausts the episode budget does not advance the world, so a seed
// ends in the same state here and in a driven run.
type JumpScape struct {
	Agents          int
	Episodes        int
	TicksPerEpisode int
}

func (JumpScape) Name() string {
	return "jump"
}

func (s JumpScape) Evaluate(ctx context.Context, seed int64) (Fitness, Trace, error) {
	episodes := s.Episodes
	if episodes <= 0 {
		episodes = 60
	}
	ticksPerEpisode := s.TicksPerEpisode
	if ticksPerEpisode <= 0 {
		ticksPerEpisode = 60
	}

	rng := rand.New(rand.NewSource(seed))
	world := NewWorld(s.Agents, rng)

	var totals StepStats
	ticks := episodes * ticksPerEpisode
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	for tick := 1; tick < ticks; tick++ {
		if tick%ticksPerEpisode == 0 {
			if err := ctx.Err(); err != nil {
				return 0, nil, err
			}
		}
		totals.Add(world.Advance(rng))
	}

	best := world.Agents[0]
	for _, a := range world.Agents[1:] {
		if a.Reward > best.Reward {
			best = a
		}
	}

	trace := NewTrace()
	trace.Set("seed", seed)
	trace.Set("agents", len(world.Agents))
	trace.Set("episodes", episodes)
	trace.Set("ticks", ticks)
	trace.Set("mean_reward", world.MeanReward())
	trace.Set("mean_threshold", world.MeanThreshold())
	trace.Set("successes", totals.Successes)
	trace.Set("failures", totals.Failures)
	trace.Set("jumps", totals.Jumps)
	trace.Set("best_agent", best.Name)
	trace.Set("best_reward", best.Reward)
	return Fitness(world.MeanReward()), trace, nil
}
