package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, jobID)
	return d.err
}

func newTestSampleService(t *testing.T) (*SampleService, *JobStore, *recordingDispatcher, client.StorageClient) {
	t.Helper()
	storage, err := client.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := NewJobStore()
	dispatcher := &recordingDispatcher{}
	return NewSampleService(store, dispatcher, storage, 10), store, dispatcher, storage
}

func createRequest(payload string) *model.SampleCreateRequest {
	return &model.SampleCreateRequest{ImageBase64: base64.StdEncoding.EncodeToString([]byte(payload))}
}

func completeJob(t *testing.T, job *model.Job, location string) {
	t.Helper()
	require.NoError(t, job.Start("", time.Now()))
	require.NoError(t, job.BeginGeneration(""))
	require.NoError(t, job.Complete(location, time.Now()))
}

func TestSampleService_CreateReturnsPendingJob(t *testing.T) {
	svc, store, dispatcher, _ := newTestSampleService(t)

	resp, err := svc.Create(context.Background(), createRequest("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, []string{resp.JobID}, dispatcher.ids)

	job, err := store.Get(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), job.Image())

	status, err := svc.GetStatus(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, status.Status)
	assert.Equal(t, 0, status.Progress)
	assert.Equal(t, 0, status.SamplesGenerated)
	assert.Equal(t, 10, status.TotalSamples)
	assert.Nil(t, status.Error)
}

func TestSampleService_CreateRejectsBadPayload(t *testing.T) {
	svc, store, _, _ := newTestSampleService(t)

	_, err := svc.Create(context.Background(), &model.SampleCreateRequest{ImageBase64: "***"})
	assert.ErrorIs(t, err, ErrInvalidImage)
	_, err = svc.Create(context.Background(), &model.SampleCreateRequest{ImageBase64: ""})
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Equal(t, 0, store.Len())
}

func TestSampleService_DispatchFailureFailsJob(t *testing.T) {
	svc, store, dispatcher, _ := newTestSampleService(t)
	dispatcher.err = errors.New("redis down")

	_, err := svc.Create(context.Background(), createRequest("img"))
	require.Error(t, err)
	require.Len(t, dispatcher.ids, 1)

	job, err := store.Get(dispatcher.ids[0])
	require.NoError(t, err)
	snap := job.Snapshot()
	assert.Equal(t, model.JobStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "redis down")
}

func TestSampleService_StatusUnknownJob(t *testing.T) {
	svc, _, _, _ := newTestSampleService(t)
	_, err := svc.GetStatus("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSampleService_OpenArchiveNotReady(t *testing.T) {
	svc, _, _, _ := newTestSampleService(t)
	resp, err := svc.Create(context.Background(), createRequest("img"))
	require.NoError(t, err)

	_, _, err = svc.OpenArchive(context.Background(), resp.JobID)
	var notReady *JobNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, model.JobStatusPending, notReady.Status)
	assert.Contains(t, err.Error(), "pending")
}

func TestSampleService_OpenArchiveFailedJobNotReady(t *testing.T) {
	svc, store, _, _ := newTestSampleService(t)
	job := store.Create([]byte("img"), 10)
	require.NoError(t, job.Fail("boom"))

	_, _, err := svc.OpenArchive(context.Background(), job.ID)
	var notReady *JobNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, model.JobStatusFailed, notReady.Status)
}

func TestSampleService_OpenArchive(t *testing.T) {
	svc, store, _, storage := newTestSampleService(t)
	job := store.Create([]byte("img"), 10)

	location, err := storage.Upload(context.Background(), ArchiveKey(job.ID), strings.NewReader("zip"), ArchiveContentType)
	require.NoError(t, err)
	completeJob(t, job, location)

	for i := 0; i < 2; i++ {
		rc, _, err := svc.OpenArchive(context.Background(), job.ID)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "zip", string(data))
	}
}

func TestSampleService_OpenArchiveMissing(t *testing.T) {
	svc, store, _, _ := newTestSampleService(t)
	job := store.Create([]byte("img"), 10)
	completeJob(t, job, ArchiveKey(job.ID))

	_, _, err := svc.OpenArchive(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrArchiveNotFound)
	assert.NotErrorIs(t, err, ErrJobNotFound)

	_, _, err = svc.OpenArchive(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSampleService_Cancel(t *testing.T) {
	svc, store, _, _ := newTestSampleService(t)
	job := store.Create([]byte("img"), 10)

	resp, err := svc.Cancel(job.ID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, model.JobStatusCanceled, resp.Status)

	_, err = svc.Cancel(job.ID)
	assert.ErrorIs(t, err, ErrJobTerminal)

	_, err = svc.Cancel("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
