package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/samplepack/internal/model"
	"github.com/makeasinger/samplepack/internal/service"
	"github.com/rs/zerolog"
)

// fillerDescription labels samples the descriptor did not provide
const fillerDescription = "Ambient sound variation %d"

// SampleWorker runs the analysis, generation and packaging stages for one job
type SampleWorker struct {
	store       *service.JobStore
	descriptor  service.Descriptor
	synthesizer service.Synthesizer
	packager    service.Packager
	staging     *service.Staging
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSampleWorker creates a new sample worker
func NewSampleWorker(
	store *service.JobStore,
	descriptor service.Descriptor,
	synthesizer service.Synthesizer,
	packager service.Packager,
	staging *service.Staging,
	logger zerolog.Logger,
) *SampleWorker {
	return &SampleWorker{
		store:       store,
		descriptor:  descriptor,
		synthesizer: synthesizer,
		packager:    packager,
		staging:     staging,
		logger:      logger.With().Str("component", "sample_worker").Logger(),
		now:         time.Now,
	}
}

// ProcessTask handles sample task processing
func (w *SampleWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SampleTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.Run(ctx, payload.JobID); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// Run executes the pipeline for a stored job. Pipeline failures are recorded
// on the job and also returned; a canceled job returns nil.
func (w *SampleWorker) Run(ctx context.Context, jobID string) error {
	job, err := w.store.Get(jobID)
	if err != nil {
		return err
	}
	return w.run(ctx, job)
}

func (w *SampleWorker) run(parent context.Context, job *model.Job) (err error) {
	log := w.logger.With().Str("job_id", job.ID).Logger()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-job.Canceled():
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Msgf("Recovered from panic: %v", r)
			w.failJob(job, err, log)
		}
		if rmErr := w.staging.Remove(job.ID); rmErr != nil {
			log.Warn().Err(rmErr).Msg("Failed to remove staging directory")
		}
	}()

	log.Info().Msg("Starting sample job")
	start := w.now()

	if err := w.process(ctx, job, log); err != nil {
		if job.Status() == model.JobStatusCanceled {
			log.Info().Msg("Sample job canceled")
			return nil
		}
		w.failJob(job, err, log)
		return err
	}

	log.Info().Dur("elapsed", w.now().Sub(start)).Msg("Sample job completed")
	return nil
}

func (w *SampleWorker) process(ctx context.Context, job *model.Job, log zerolog.Logger) error {
	total := job.TotalSamples

	// Stage 1: analysis
	if err := job.Start("Analyzing image", w.now()); err != nil {
		return err
	}

	descriptions, err := w.descriptor.Describe(ctx, job.Image(), total)
	if err != nil {
		return err
	}
	log.Debug().Int("returned", len(descriptions)).Int("required", total).Msg("Descriptions generated")
	descriptions = normalizeDescriptions(descriptions, total)
	job.ReleaseImage()

	// Stage 2: generation
	if err := job.BeginGeneration(fmt.Sprintf("Generating sample 1/%d", total)); err != nil {
		return err
	}

	samples := make([]service.StagedSample, 0, total)
	for i, description := range descriptions {
		index := i + 1
		log.Debug().Int("sample", index).Str("description", description).Msg("Generating sample")

		wave, err := w.synthesizer.Synthesize(ctx, description)
		if err != nil {
			return &service.SynthesisError{Index: index, Description: description, Err: err}
		}

		staged, err := w.staging.WriteSample(job.ID, index, description, wave)
		if err != nil {
			return &service.SynthesisError{Index: index, Description: description, Err: err}
		}
		samples = append(samples, *staged)
		log.Debug().Int("sample", index).Dur("duration", wave.Duration()).Msg("Sample staged")

		step := "Packaging samples"
		if index < total {
			step = fmt.Sprintf("Generating sample %d/%d", index+1, total)
		}
		if err := job.SampleGenerated(model.GenerationProgress(index, total), step); err != nil {
			return err
		}
	}

	// Stage 3: packaging
	if err := job.Advance(model.ProgressPackaging, "Packaging samples"); err != nil {
		return err
	}

	location, err := w.packager.Package(ctx, job.ID, samples)
	if err != nil {
		return err
	}

	if err := job.Complete(location, w.now()); err != nil {
		// The job went terminal during upload; nothing will ever serve this archive.
		if discardErr := w.packager.Discard(context.WithoutCancel(ctx), location); discardErr != nil {
			log.Warn().Err(discardErr).Str("location", location).Msg("Failed to discard unreferenced archive")
		}
		return err
	}
	return nil
}

// Abandon fails a job that has not started. Jobs already past pending are left alone.
func (w *SampleWorker) Abandon(jobID, reason string) {
	job, err := w.store.Get(jobID)
	if err != nil {
		return
	}
	if job.Status() != model.JobStatusPending {
		return
	}
	if err := job.Fail(reason); err != nil {
		w.logger.Debug().Err(err).Str("job_id", jobID).Msg("Job already terminal, not abandoned")
		return
	}
	w.logger.Warn().Str("job_id", jobID).Str("reason", reason).Msg("Sample job abandoned")
}

func (w *SampleWorker) failJob(job *model.Job, cause error, log zerolog.Logger) {
	log.Error().Err(cause).Msg("Sample job failed")
	if err := job.Fail(cause.Error()); err != nil {
		log.Debug().Err(err).Msg("Job already terminal, failure not recorded")
	}
}

// normalizeDescriptions pads with filler or truncates so exactly total
// descriptions remain. Blank entries are replaced with filler too.
func normalizeDescriptions(descriptions []string, total int) []string {
	out := make([]string, total)
	for i := range out {
		if i < len(descriptions) && strings.TrimSpace(descriptions[i]) != "" {
			out[i] = descriptions[i]
			continue
		}
		out[i] = fmt.Sprintf(fillerDescription, i+1)
	}
	return out
}
