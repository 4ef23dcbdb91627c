package model

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *Job {
	return NewJob("job-1", []byte("img"), 10, time.Now())
}

func TestNewJob_Pending(t *testing.T) {
	job := newTestJob()
	snap := job.Snapshot()

	assert.Equal(t, JobStatusPending, snap.Status)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, 0, snap.SamplesGenerated)
	assert.Equal(t, 10, snap.TotalSamples)
	assert.Empty(t, snap.ResultLocation)
	assert.Empty(t, snap.Error)
	assert.Nil(t, snap.StartedAt)
	assert.Nil(t, snap.CompletedAt)
	assert.Equal(t, []byte("img"), job.Image())
}

func TestJob_HappyPath(t *testing.T) {
	job := newTestJob()

	require.NoError(t, job.Start("Analyzing image", time.Now()))
	assert.Equal(t, JobStatusAnalyzing, job.Status())
	assert.Equal(t, ProgressAnalyzing, job.Snapshot().Progress)

	require.NoError(t, job.BeginGeneration("Generating sample 1/10"))
	assert.Equal(t, ProgressAnalysisComplete, job.Snapshot().Progress)

	for i := 1; i <= 10; i++ {
		require.NoError(t, job.SampleGenerated(GenerationProgress(i, 10), ""))
	}
	require.Error(t, job.SampleGenerated(GenerationProgress(11, 10), ""), "samples_generated must not exceed total")

	require.NoError(t, job.Advance(ProgressPackaging, "Packaging"))
	require.NoError(t, job.Complete("archives/job-1/sample_pack.zip", time.Now()))

	snap := job.Snapshot()
	assert.Equal(t, JobStatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, 10, snap.SamplesGenerated)
	assert.Equal(t, "archives/job-1/sample_pack.zip", snap.ResultLocation)
	assert.NotNil(t, snap.CompletedAt)
	assert.Empty(t, snap.Error)
	assert.Nil(t, job.Image())
}

func TestJob_TerminalStatesAreFinal(t *testing.T) {
	job := newTestJob()
	require.NoError(t, job.Start("", time.Now()))
	require.NoError(t, job.Fail("boom"))

	assert.ErrorIs(t, job.Fail("again"), ErrInvalidTransition)
	assert.ErrorIs(t, job.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, job.Advance(50, "x"), ErrInvalidTransition)
	assert.ErrorIs(t, job.Complete("loc", time.Now()), ErrInvalidTransition)

	snap := job.Snapshot()
	assert.Equal(t, JobStatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)
	assert.Empty(t, snap.ResultLocation)
	assert.Nil(t, snap.CompletedAt)
}

func TestJob_SkippingStagesRejected(t *testing.T) {
	job := newTestJob()
	assert.ErrorIs(t, job.BeginGeneration(""), ErrInvalidTransition)
	assert.ErrorIs(t, job.Complete("loc", time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, job.SampleGenerated(20, ""), ErrInvalidTransition)
	assert.Equal(t, JobStatusPending, job.Status())
}

func TestJob_CompleteRequiresLocation(t *testing.T) {
	job := newTestJob()
	require.NoError(t, job.Start("", time.Now()))
	require.NoError(t, job.BeginGeneration(""))
	assert.ErrorIs(t, job.Complete("", time.Now()), ErrInvalidTransition)
	assert.Equal(t, JobStatusGenerating, job.Status())
}

func TestJob_CancelClosesChannel(t *testing.T) {
	job := newTestJob()
	require.NoError(t, job.Cancel())

	select {
	case <-job.Canceled():
	default:
		t.Fatal("expected canceled channel to be closed")
	}
	snap := job.Snapshot()
	assert.Equal(t, JobStatusCanceled, snap.Status)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.ResultLocation)
}

func TestJob_ProgressNeverDecreases(t *testing.T) {
	job := newTestJob()
	require.NoError(t, job.Start("", time.Now()))
	require.NoError(t, job.Advance(40, "forward"))
	require.NoError(t, job.Advance(20, "backward"))

	snap := job.Snapshot()
	assert.Equal(t, 40, snap.Progress)
	assert.Equal(t, "backward", snap.CurrentStep)
}

func TestJob_SnapshotNeverTorn(t *testing.T) {
	job := newTestJob()
	require.NoError(t, job.Start("", time.Now()))
	require.NoError(t, job.BeginGeneration(""))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := job.Snapshot()
				if snap.Status == JobStatusCompleted {
					assert.NotEmpty(t, snap.ResultLocation)
					assert.NotNil(t, snap.CompletedAt)
					assert.Equal(t, 100, snap.Progress)
				}
			}
		}()
	}

	for i := 1; i <= 10; i++ {
		require.NoError(t, job.SampleGenerated(GenerationProgress(i, 10), ""))
	}
	require.NoError(t, job.Complete("loc", time.Now()))
	close(stop)
	wg.Wait()
}

func TestGenerationProgress(t *testing.T) {
	assert.Equal(t, ProgressAnalysisComplete, GenerationProgress(0, 10))
	assert.Equal(t, ProgressPackaging, GenerationProgress(10, 10))
	assert.Equal(t, ProgressPackaging, GenerationProgress(12, 10))

	prev := GenerationProgress(0, 10)
	for i := 1; i <= 10; i++ {
		p := GenerationProgress(i, 10)
		assert.Greater(t, p, prev)
		prev = p
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(JobStatusPending, JobStatusAnalyzing))
	assert.True(t, CanTransition(JobStatusPending, JobStatusFailed))
	assert.True(t, CanTransition(JobStatusGenerating, JobStatusCanceled))
	assert.False(t, CanTransition(JobStatusPending, JobStatusGenerating))
	assert.False(t, CanTransition(JobStatusCompleted, JobStatusFailed))
	assert.False(t, CanTransition(JobStatusCanceled, JobStatusAnalyzing))
}

func TestWaveformDuration(t *testing.T) {
	w := &Waveform{SampleRate: 100, Channels: 2, BitDepth: 16, Data: make([]int, 400)}
	assert.Equal(t, 2*time.Second, w.Duration())
	assert.Equal(t, time.Duration(0), (*Waveform)(nil).Duration())
}

func TestStatusResponseFromSnapshot(t *testing.T) {
	job := newTestJob()
	require.NoError(t, job.Start("Analyzing image", time.Now()))
	require.NoError(t, job.Fail("vision model timed out"))

	data, err := json.Marshal(StatusResponseFromSnapshot(job.Snapshot()))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, "failed", fields["status"])
	assert.EqualValues(t, ProgressAnalyzing, fields["progress"])
	assert.Equal(t, "Failed", fields["current_step"])
	assert.EqualValues(t, 0, fields["samples_generated"])
	assert.EqualValues(t, 10, fields["total_samples"])
	assert.Equal(t, "vision model timed out", fields["error"])
	assert.Contains(t, fields, "started_at")
	assert.NotContains(t, fields, "completed_at")
	assert.NotContains(t, fields, "currentStep")
	assert.NotContains(t, fields, "ResultLocation")
}
