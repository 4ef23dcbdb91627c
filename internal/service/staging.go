package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/model"
)

// StagedSample is one generated sample waiting to be packaged.
type StagedSample struct {
	Filename    string
	Path        string
	Description string
}

// SampleFilename returns the archive name of the sample at 1-based index.
func SampleFilename(index int) string {
	return fmt.Sprintf("sample_%02d.wav", index)
}

// Staging keeps per-job working directories under <work_dir>/jobs.
type Staging struct {
	root string
}

func NewStaging(workDir string) *Staging {
	return &Staging{root: filepath.Join(workDir, "jobs")}
}

// JobDir returns the working directory of a job.
func (s *Staging) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// WriteSample encodes wave as the sample at 1-based index.
func (s *Staging) WriteSample(jobID string, index int, description string, wave *model.Waveform) (*StagedSample, error) {
	dir := s.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	name := SampleFilename(index)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := client.EncodeWAV(f, wave); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", name, err)
	}

	return &StagedSample{
		Filename:    name,
		Path:        path,
		Description: description,
	}, nil
}

// Remove deletes everything staged for a job.
func (s *Staging) Remove(jobID string) error {
	return os.RemoveAll(s.JobDir(jobID))
}
