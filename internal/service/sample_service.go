package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/model"
)

// JobDispatcher hands a stored job to whatever runs pipelines.
// Dispatch must not wait for the pipeline.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// SampleService implements the job API over the store
type SampleService struct {
	store        *JobStore
	dispatcher   JobDispatcher
	storage      client.StorageClient
	totalSamples int
}

// NewSampleService creates a new sample service
func NewSampleService(store *JobStore, dispatcher JobDispatcher, storage client.StorageClient, totalSamples int) *SampleService {
	return &SampleService{
		store:        store,
		dispatcher:   dispatcher,
		storage:      storage,
		totalSamples: totalSamples,
	}
}

// Create stores a pending job for the image and dispatches it
func (s *SampleService) Create(ctx context.Context, req *model.SampleCreateRequest) (*model.SampleCreateResponse, error) {
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidImage)
	}

	job := s.store.Create(image, s.totalSamples)

	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		_ = job.Fail(fmt.Sprintf("failed to dispatch job: %v", err))
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	return &model.SampleCreateResponse{
		JobID:   job.ID,
		Status:  "accepted",
		Message: "Sample pack generation started",
	}, nil
}

// GetStatus returns a point-in-time view of a job
func (s *SampleService) GetStatus(jobID string) (*model.SampleStatusResponse, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}

	return model.StatusResponseFromSnapshot(job.Snapshot()), nil
}

// OpenArchive streams the archive of a completed job
func (s *SampleService) OpenArchive(ctx context.Context, jobID string) (io.ReadCloser, int64, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, 0, err
	}

	snap := job.Snapshot()
	if snap.Status != model.JobStatusCompleted {
		return nil, 0, &JobNotReadyError{Status: snap.Status}
	}
	if snap.ResultLocation == "" {
		return nil, 0, ErrArchiveNotFound
	}

	body, size, err := s.storage.Download(ctx, snap.ResultLocation)
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return nil, 0, ErrArchiveNotFound
		}
		return nil, 0, fmt.Errorf("failed to open archive: %w", err)
	}

	return body, size, nil
}

// Cancel moves an active job to canceled
func (s *SampleService) Cancel(jobID string) (*model.SampleCancelResponse, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}

	if err := job.Cancel(); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: status is %s", ErrJobTerminal, job.Status())
		}
		return nil, err
	}

	return &model.SampleCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}
