package service

import (
	"errors"
	"fmt"

	"github.com/makeasinger/samplepack/internal/model"
)

var (
	// ErrJobNotFound is returned for identifiers the store has never issued.
	ErrJobNotFound = errors.New("job not found")

	// ErrArchiveNotFound means the job completed but its archive is gone.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrJobTerminal is returned when canceling a job that already finished.
	ErrJobTerminal = errors.New("job already finished")

	// ErrInvalidImage is returned when the submitted payload is not a decodable image.
	ErrInvalidImage = errors.New("invalid image payload")
)

// JobNotReadyError is returned when a download is requested before completion.
type JobNotReadyError struct {
	Status model.JobStatus
}

func (e *JobNotReadyError) Error() string {
	return fmt.Sprintf("job not completed: current status is %s", e.Status)
}

// DescriptorParseError means the descriptor model returned output that could
// not be read as a list of descriptions.
type DescriptorParseError struct {
	Raw string
	Err error
}

func (e *DescriptorParseError) Error() string {
	return fmt.Sprintf("failed to parse audio descriptions: %v", e.Err)
}

func (e *DescriptorParseError) Unwrap() error { return e.Err }

// SynthesisError wraps the failure of a single sample.
type SynthesisError struct {
	Index       int
	Description string
	Err         error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("sample %d generation failed: %v", e.Index, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PackagingError wraps a failure while assembling or storing the archive.
type PackagingError struct {
	Err error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging failed: %v", e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }
