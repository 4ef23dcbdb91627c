package model

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when a write would move a job along an
// edge the state machine does not allow, including any write to a terminal job.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Job is the trackable unit of work for one image-to-sample-pack run.
//
// Identity fields are immutable after construction. Mutable fields are only
// reachable through methods that take the record lock, so a reader calling
// Snapshot never sees a half-applied transition (e.g. completed without a
// result location).
type Job struct {
	ID           string
	TotalSamples int
	CreatedAt    time.Time

	mu               sync.RWMutex
	status           JobStatus
	progress         int
	currentStep      string
	samplesGenerated int
	resultLocation   string
	errMsg           string
	startedAt        *time.Time
	completedAt      *time.Time
	image            []byte
	canceled         chan struct{}
}

// JobSnapshot is a point-in-time copy of a Job's observable fields.
type JobSnapshot struct {
	ID               string
	Status           JobStatus
	Progress         int
	CurrentStep      string
	SamplesGenerated int
	TotalSamples     int
	ResultLocation   string
	Error            string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// NewJob creates a pending job holding the decoded input image.
func NewJob(id string, image []byte, totalSamples int, now time.Time) *Job {
	return &Job{
		ID:           id,
		TotalSamples: totalSamples,
		CreatedAt:    now,
		status:       JobStatusPending,
		currentStep:  "Queued",
		image:        image,
		canceled:     make(chan struct{}),
	}
}

// Snapshot returns a consistent copy of the job's fields.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return JobSnapshot{
		ID:               j.ID,
		Status:           j.status,
		Progress:         j.progress,
		CurrentStep:      j.currentStep,
		SamplesGenerated: j.samplesGenerated,
		TotalSamples:     j.TotalSamples,
		ResultLocation:   j.resultLocation,
		Error:            j.errMsg,
		CreatedAt:        j.CreatedAt,
		StartedAt:        copyTime(j.startedAt),
		CompletedAt:      copyTime(j.completedAt),
	}
}

// Status returns the current status.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Image returns the input payload, or nil once it has been released.
func (j *Job) Image() []byte {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.image
}

// ReleaseImage drops the input payload after the analysis stage consumed it.
func (j *Job) ReleaseImage() {
	j.mu.Lock()
	j.image = nil
	j.mu.Unlock()
}

// Canceled is closed when the job is canceled.
func (j *Job) Canceled() <-chan struct{} {
	return j.canceled
}

// Start moves a pending job into the analysis stage.
func (j *Job) Start(step string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(JobStatusAnalyzing); err != nil {
		return err
	}
	j.startedAt = &now
	j.advanceLocked(ProgressAnalyzing, step)
	return nil
}

// BeginGeneration moves an analyzing job into the generation stage.
func (j *Job) BeginGeneration(step string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(JobStatusGenerating); err != nil {
		return err
	}
	j.advanceLocked(ProgressAnalysisComplete, step)
	return nil
}

// Advance updates progress and step label without changing status.
// Progress never moves backwards.
func (j *Job) Advance(progress int, step string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, j.ID, j.status)
	}
	j.advanceLocked(progress, step)
	return nil
}

// SampleGenerated records one finished sample and its progress checkpoint.
func (j *Job) SampleGenerated(progress int, step string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != JobStatusGenerating {
		return fmt.Errorf("%w: job %s is %s, not generating", ErrInvalidTransition, j.ID, j.status)
	}
	if j.samplesGenerated >= j.TotalSamples {
		return fmt.Errorf("%w: job %s already has %d samples", ErrInvalidTransition, j.ID, j.samplesGenerated)
	}
	j.samplesGenerated++
	j.advanceLocked(progress, step)
	return nil
}

// Complete sets the result location and completion time together with the
// terminal status.
func (j *Job) Complete(location string, now time.Time) error {
	if location == "" {
		return fmt.Errorf("%w: job %s completed without a result location", ErrInvalidTransition, j.ID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(JobStatusCompleted); err != nil {
		return err
	}
	j.resultLocation = location
	j.completedAt = &now
	j.image = nil
	j.advanceLocked(ProgressComplete, "Completed")
	return nil
}

// Fail records the verbatim failure cause. It is a no-op error on terminal jobs.
func (j *Job) Fail(msg string) error {
	if msg == "" {
		msg = "unknown error"
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(JobStatusFailed); err != nil {
		return err
	}
	j.errMsg = msg
	j.image = nil
	j.currentStep = "Failed"
	return nil
}

// Cancel moves an active job to canceled and signals its runner.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(JobStatusCanceled); err != nil {
		return err
	}
	j.image = nil
	j.currentStep = "Canceled"
	close(j.canceled)
	return nil
}

func (j *Job) transitionLocked(to JobStatus) error {
	if !CanTransition(j.status, to) {
		return fmt.Errorf("%w: %s -> %s for job %s", ErrInvalidTransition, j.status, to, j.ID)
	}
	j.status = to
	return nil
}

func (j *Job) advanceLocked(progress int, step string) {
	if progress > ProgressComplete {
		progress = ProgressComplete
	}
	if progress > j.progress {
		j.progress = progress
	}
	if step != "" {
		j.currentStep = step
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
