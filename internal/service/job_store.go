package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makeasinger/samplepack/internal/model"
)

// JobStore is the process-wide table of job records. Records are shared by
// reference: the store guards only the map, each record guards its own fields.
//
// Records are never evicted, so the table grows for the life of the process.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*model.Job
	newID func() string
	now   func() time.Time
}

// NewJobStore creates an empty store issuing random UUIDs.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[string]*model.Job),
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Create inserts a new pending job for the given image.
func (s *JobStore) Create(image []byte, totalSamples int) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for _, taken := s.jobs[id]; taken; _, taken = s.jobs[id] {
		id = s.newID()
	}

	job := model.NewJob(id, image, totalSamples, s.now())
	s.jobs[id] = job
	return job
}

// Get returns the shared record for id.
func (s *JobStore) Get(id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Len returns the number of records held.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
