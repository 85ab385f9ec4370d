package storage

import (
	"context"
	"testing"

	"jumptrainer/internal/model"
)

func testRun(id, startedAt string) model.RunRecord {
	return Stamp(model.RunRecord{
		ID:             id,
		StartedAtUTC:   startedAt,
		FinishedAtUTC:  startedAt,
		Status:         "completed",
		AgentCount:     2,
		EpisodeBudget:  3,
		TicksPerSecond: 60,
		Seed:           7,
		Signature:      1234,
		Ticks:          180,
		Episodes:       3,
		MeanReward:     1.5,
		Agents: []model.AgentResult{
			{ID: 1, Name: "AG-01", Lane: 0.15, Threshold: 0.2, Rate: 0.004, Reward: 2, Outcome: "success"},
			{ID: 2, Name: "AG-02", Lane: 0.18, Threshold: 0.35, Rate: 0.009, Reward: 1, Outcome: "failure"},
		},
	})
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	older := testRun("run-a", "2026-01-01T00:00:00Z")
	newer := testRun("run-b", "2026-01-02T00:00:00Z")
	for _, run := range []model.RunRecord{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	loaded, ok, err := store.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected run-a")
	}
	if loaded.Signature != 1234 || len(loaded.Agents) != 2 || loaded.Agents[1].Outcome != "failure" {
		t.Fatalf("unexpected run loaded: %+v", loaded)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("list runs limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "run-b" {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}

	older.MeanReward = -0.5
	if err := store.SaveRun(ctx, older); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
	loaded, _, err = store.GetRun(ctx, "run-a")
	if err != nil || loaded.MeanReward != -0.5 {
		t.Fatalf("expected overwritten run, got %+v err=%v", loaded, err)
	}

	episodes := []model.EpisodeSummary{
		{Episode: 1, Tick: 60, MeanReward: 0.5, MeanThreshold: 0.3, Successes: 2, Failures: 1, Jumps: 3},
		{Episode: 2, Tick: 120, MeanReward: 1.0, MeanThreshold: 0.29, Successes: 1},
	}
	if err := store.SaveEpisodes(ctx, "run-a", episodes); err != nil {
		t.Fatalf("save episodes: %v", err)
	}
	gotEpisodes, ok, err := store.GetEpisodes(ctx, "run-a")
	if err != nil {
		t.Fatalf("get episodes: %v", err)
	}
	if !ok || len(gotEpisodes) != 2 || gotEpisodes[1].Tick != 120 || gotEpisodes[0].Jumps != 3 {
		t.Fatalf("unexpected episodes: ok=%v %+v", ok, gotEpisodes)
	}
	if _, ok, err := store.GetEpisodes(ctx, "run-b"); err != nil || ok {
		t.Fatalf("expected no episodes for run-b, ok=%v err=%v", ok, err)
	}

	if err := store.DeleteRun(ctx, "run-a"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, ok, _ := store.GetRun(ctx, "run-a"); ok {
		t.Fatal("expected run-a to be deleted")
	}
	if _, ok, _ := store.GetEpisodes(ctx, "run-a"); ok {
		t.Fatal("expected run-a episodes to be deleted")
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err = store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty store after reset, got %d runs", len(runs))
	}
}
