package storage

import (
	"context"
	"errors"

	"jumptrainer/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists finished runs and their per-episode history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first. A non-positive limit returns all.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveEpisodes(ctx context.Context, runID string, episodes []model.EpisodeSummary) error
	GetEpisodes(ctx context.Context, runID string) ([]model.EpisodeSummary, bool, error)
	Reset(ctx context.Context) error
}
