package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newEngine(t *testing.T, m *Manager) (*admission.Engine, *admission.FileRecord) {
	t.Helper()
	e := admission.NewEngine(admission.Config{
		SessionID: "session-1",
		URL:       admission.StaticURL("http://receiver.test/upload"),
		Transport: m,
	})
	added := e.AddFiles(admission.Raw(admission.NewMemoryHandle("a.png", "image/png", []byte("png!"))))
	require.Len(t, added, 1)
	return e, added[0]
}

func TestManager_CompleteJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager(admission.TransportFunc(func(ctx context.Context, req *admission.Request) (*admission.Response, error) {
		req.Progress(50)
		return &admission.Response{Files: req.Files}, nil
	}))
	e, rec := newEngine(t, m)

	up, err := e.UploadFiles(context.Background())
	require.NoError(t, err)
	_, err = up.Wait()
	require.NoError(t, err)

	job, ok := m.LatestJob("session-1")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, job.Status)
	assert.Equal(t, 1, job.FileCount)
	assert.Equal(t, int64(4), job.Bytes)
	assert.Equal(t, 1, job.Uploaded)
	assert.Equal(t, float64(100), job.Progress)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, admission.StatusUploaded, rec.Status())

	byID, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, byID.ID)
}

func TestManager_ErrorJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager(admission.TransportFunc(func(ctx context.Context, req *admission.Request) (*admission.Response, error) {
		return nil, errors.New("connection refused")
	}))
	e, rec := newEngine(t, m)

	up, err := e.UploadFiles(context.Background())
	require.NoError(t, err)
	_, err = up.Wait()
	require.Error(t, err)

	job, ok := m.LatestJob("session-1")
	require.True(t, ok)
	assert.Equal(t, StatusError, job.Status)
	assert.Contains(t, job.Error, "connection refused")
	assert.Equal(t, admission.StatusValid, rec.Status())
}

func TestManager_AbortedJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	m := NewManager(admission.TransportFunc(func(ctx context.Context, req *admission.Request) (*admission.Response, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	e, _ := newEngine(t, m)

	up, err := e.UploadFiles(context.Background())
	require.NoError(t, err)
	<-started

	job, ok := m.LatestJob("session-1")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, job.Status)

	require.True(t, e.AbortUpload())
	_, err = up.Wait()
	assert.True(t, admission.IsAborted(err))

	job, _ = m.GetJob(job.ID)
	assert.Equal(t, StatusAborted, job.Status)
}

func TestManager_ProgressReachesEngine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	reported := make(chan struct{})
	m := NewManager(admission.TransportFunc(func(ctx context.Context, req *admission.Request) (*admission.Response, error) {
		req.Progress(40)
		close(reported)
		<-release
		return &admission.Response{}, nil
	}))
	e, _ := newEngine(t, m)

	up, err := e.UploadFiles(context.Background())
	require.NoError(t, err)
	<-reported

	job, _ := m.LatestJob("session-1")
	assert.Equal(t, float64(40), job.Progress)
	assert.Equal(t, float64(40), e.UploadStatus().PercentComplete)

	close(release)
	_, err = up.Wait()
	require.NoError(t, err)
}

func TestManager_CleanupOldJobs(t *testing.T) {
	m := NewManager(admission.TransportFunc(func(ctx context.Context, req *admission.Request) (*admission.Response, error) {
		return &admission.Response{}, nil
	}))

	_, err := m.Upload(context.Background(), &admission.Request{SessionID: "s", Progress: func(float64) {}})
	require.NoError(t, err)

	job, ok := m.LatestJob("s")
	require.True(t, ok)

	assert.Zero(t, m.CleanupOldJobs(time.Hour))
	assert.Equal(t, 1, m.CleanupOldJobs(-time.Second))

	_, ok = m.GetJob(job.ID)
	assert.False(t, ok)
	_, ok = m.LatestJob("s")
	assert.False(t, ok)
}

func TestStatus_Finished(t *testing.T) {
	assert.False(t, StatusProcessing.Finished())
	assert.True(t, StatusComplete.Finished())
	assert.True(t, StatusError.Finished())
	assert.True(t, StatusAborted.Finished())
}
