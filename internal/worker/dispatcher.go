package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	TaskTypeSample = "sample:process"
	sampleQueue    = "samples"
)

// ErrDispatcherClosed is returned by Dispatch after Shutdown has begun.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// shutdownReason is recorded on jobs that never started before shutdown.
const shutdownReason = "server shutting down"

// JobRunner executes the pipeline of one stored job. Abandon ends a job
// that will never be run.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
	Abandon(jobID, reason string)
}

// SampleTaskPayload is the asynq payload of a sample task
type SampleTaskPayload struct {
	JobID string `json:"jobId"`
}

// LocalDispatcher runs each job on its own goroutine. At most maxConcurrent
// pipelines run at once; the rest wait in pending.
type LocalDispatcher struct {
	runner JobRunner
	sem    *semaphore.Weighted
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewLocalDispatcher creates a dispatcher running up to maxConcurrent jobs.
func NewLocalDispatcher(runner JobRunner, maxConcurrent int, logger zerolog.Logger) *LocalDispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger.With().Str("component", "local_dispatcher").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch starts the job in the background. The request context is not
// inherited by the pipeline.
func (d *LocalDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.logger.Warn().Str("job_id", jobID).Msg("Dispatcher stopped before job could start")
			d.runner.Abandon(jobID, shutdownReason)
			return
		}
		defer d.sem.Release(1)
		if d.ctx.Err() != nil {
			d.runner.Abandon(jobID, shutdownReason)
			return
		}

		if err := d.runner.Run(d.ctx, jobID); err != nil {
			d.logger.Debug().Str("job_id", jobID).Err(err).Msg("Job finished with error")
		}
	}()

	return nil
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, running pipelines are canceled and ctx's error is returned.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// AsynqDispatcher enqueues jobs on Redis and processes them with an
// in-process asynq server. Job records still live in the local store.
type AsynqDispatcher struct {
	client *asynq.Client
	server *asynq.Server
	worker *SampleWorker
}

// NewAsynqDispatcher creates the asynq client and server for sample tasks.
func NewAsynqDispatcher(redisOpt asynq.RedisClientOpt, concurrency int, logLevel string, worker *SampleWorker, logger zerolog.Logger) *AsynqDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			sampleQueue: 1,
		},
		LogLevel: asynqLogLevel(logLevel),
		Logger:   &asynqLogger{logger: logger.With().Str("component", "asynq").Logger()},
	})

	return &AsynqDispatcher{
		client: asynq.NewClient(redisOpt),
		server: srv,
		worker: worker,
	}
}

// Start begins processing tasks in the background.
func (d *AsynqDispatcher) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSample, d.worker.ProcessTask)
	return d.server.Start(mux)
}

// Dispatch enqueues a sample task. Tasks are never retried.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := newSampleTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(sampleQueue),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Shutdown waits for active tasks and closes the Redis connections.
func (d *AsynqDispatcher) Shutdown(_ context.Context) error {
	d.server.Shutdown()
	return d.client.Close()
}

func newSampleTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(SampleTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSample, data), nil
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

// asynqLogger routes asynq's server logs through zerolog
type asynqLogger struct {
	logger zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
