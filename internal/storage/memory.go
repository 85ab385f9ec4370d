package storage

import (
	"context"
	"sort"
	"sync"

	"jumptrainer/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	seq         int
	runs        map[string]memoryRun
	episodes    map[string][]model.EpisodeSummary
}

type memoryRun struct {
	record model.RunRecord
	seq    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string]memoryRun)
	s.episodes = make(map[string][]model.EpisodeSummary)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	seq := s.seq
	if existing, ok := s.runs[run.ID]; ok {
		seq = existing.seq
	} else {
		s.seq++
	}
	run = Stamp(run)
	run.Agents = append([]model.AgentResult(nil), run.Agents...)
	s.runs[run.ID] = memoryRun{record: run, seq: seq}
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunRecord{}, false, ErrNotInitialized
	}
	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return run.record, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	items := make([]memoryRun, 0, len(s.runs))
	for _, run := range s.runs {
		items = append(items, run)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].record.StartedAtUTC == items[j].record.StartedAtUTC {
			return items[i].seq > items[j].seq
		}
		return items[i].record.StartedAtUTC > items[j].record.StartedAtUTC
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([]model.RunRecord, 0, len(items))
	for _, item := range items {
		out = append(out, item.record)
	}
	return out, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.runs, id)
	delete(s.episodes, id)
	return nil
}

func (s *MemoryStore) SaveEpisodes(_ context.Context, runID string, episodes []model.EpisodeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.episodes[runID] = append([]model.EpisodeSummary(nil), episodes...)
	return nil
}

func (s *MemoryStore) GetEpisodes(_ context.Context, runID string) ([]model.EpisodeSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	episodes, ok := s.episodes[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.EpisodeSummary(nil), episodes...), true, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.seq = 0
	s.runs = make(map[string]memoryRun)
	s.episodes = make(map[string][]model.EpisodeSummary)
	return nil
}
