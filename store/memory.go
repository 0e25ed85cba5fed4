package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gnneval/evaluation"
)

// MemoryStore keeps encoded reports in a map, so stored reports are isolated
// from later changes to the caller's copy.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
	index   map[string]Summary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = make(map[string][]byte)
	s.index = make(map[string]Summary)
	return nil
}

func (s *MemoryStore) SaveReport(_ context.Context, rep *evaluation.Report) error {
	payload, err := EncodeReport(rep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reports == nil {
		return errors.New("store is not initialized")
	}
	s.reports[rep.RunID] = payload
	s.index[rep.RunID] = Summarize(rep)
	return nil
}

func (s *MemoryStore) GetReport(_ context.Context, runID string) (*evaluation.Report, bool, error) {
	s.mu.RLock()
	payload, ok := s.reports[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	rep, err := DecodeReport(payload)
	if err != nil {
		return nil, false, err
	}
	return rep, true, nil
}

func (s *MemoryStore) ListReports(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.index))
	for _, summary := range s.index {
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
