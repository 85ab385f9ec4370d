package platform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jumptrainer/internal/model"
	"jumptrainer/internal/storage"
)

// RunReport is handed to the Recorder once per run, when it leaves running.
type RunReport struct {
	Run      model.RunRecord
	Episodes []model.EpisodeSummary
}

// Recorder receives finished runs on the goroutine that finished them. It
// must not call back into the Driver.
type Recorder interface {
	RecordRun(report RunReport)
}

type RecorderFunc func(report RunReport)

func (f RecorderFunc) RecordRun(report RunReport) {
	f(report)
}

// StoreRecorder persists finished runs. Failures are logged and passed to
// onError when set.
type StoreRecorder struct {
	Store   storage.Store
	Logger  *zap.Logger
	Timeout time.Duration
	OnError func(err error)
}

func (r StoreRecorder) RecordRun(report RunReport) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := SaveReport(ctx, r.Store, report); err != nil {
		logger.Error("persist run", zap.String("run_id", report.Run.ID), zap.Error(err))
		if r.OnError != nil {
			r.OnError(err)
		}
		return
	}
	logger.Debug("run persisted", zap.String("run_id", report.Run.ID), zap.Int("episodes", len(report.Episodes)))
}

func SaveReport(ctx context.Context, store storage.Store, report RunReport) error {
	if err := store.SaveRun(ctx, report.Run); err != nil {
		return err
	}
	return store.SaveEpisodes(ctx, report.Run.ID, report.Episodes)
}
