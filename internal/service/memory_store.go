package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/storyreel/studio/internal/model"
)

// MemoryJobStore is an in-process JobStore. Jobs are copied on the way in and
// out so callers never share a record.
type MemoryJobStore struct {
	mu      sync.RWMutex
	jobs    map[string][]byte
	scripts map[string]string
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:    make(map[string][]byte),
		scripts: make(map[string]string),
	}
}

func (s *MemoryJobStore) SaveJob(_ context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[job.Record.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	data, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MemoryJobStore) SetScriptJob(_ context.Context, scriptID, jobID string) error {
	s.mu.Lock()
	s.scripts[scriptID] = jobID
	s.mu.Unlock()
	return nil
}

func (s *MemoryJobStore) GetScriptJob(_ context.Context, scriptID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobID, ok := s.scripts[scriptID]
	if !ok {
		return "", ErrNoGeneration
	}
	return jobID, nil
}
