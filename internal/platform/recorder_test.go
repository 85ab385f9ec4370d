package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jumptrainer/internal/model"
	"jumptrainer/internal/storage"
)

func TestStoreRecorderPersistsRunAndEpisodes(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))

	d, _, _ := newManualDriver(t)
	d.recorder = StoreRecorder{Store: store}
	d.Start(3, RunConfig{EpisodeBudget: 2, TicksPerSecond: 5, Seed: 21})
	stepN(d, 10)

	runID := d.Snapshot().RunID
	run, ok, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 10, run.Ticks)
	assert.Equal(t, 2, run.Episodes)
	assert.Len(t, run.Agents, 3)

	episodes, ok, err := store.GetEpisodes(context.Background(), runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d.History(), episodes)
}

func TestStoreRecorderReportsFailures(t *testing.T) {
	var got error
	rec := StoreRecorder{
		Store:   storage.NewMemoryStore(),
		OnError: func(err error) { got = err },
	}
	rec.RecordRun(RunReport{Run: model.RunRecord{ID: "r1"}})
	assert.True(t, errors.Is(got, storage.ErrNotInitialized), "got %v", got)
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusRunning, StatusCompleted} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	var s Status
	assert.Error(t, s.UnmarshalText([]byte("paused")))
	assert.Equal(t, "IDLE", StatusIdle.Label())
	assert.Equal(t, "TRAINING", StatusRunning.Label())
	assert.Equal(t, "COMPLETE", StatusCompleted.Label())
}
