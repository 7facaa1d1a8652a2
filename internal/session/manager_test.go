package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func png(name string) admission.Input {
	return admission.Raw(admission.NewMemoryHandle(name, "image/png", []byte("png")))
}

func text(name string) admission.Input {
	return admission.Raw(admission.NewMemoryHandle(name, "text/plain", []byte("txt")))
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager(Config{})

	s, err := m.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.ID, s.Engine.SessionID())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())

	_, ok = m.Get("missing")
	assert.False(t, ok)
	assert.False(t, m.Touch("missing"))
}

func TestManager_OptionsPerSession(t *testing.T) {
	m := NewManager(Config{Options: func() admission.Options {
		opts := admission.DefaultOptions()
		opts.MimeTypes = []admission.MimeType{admission.Exact("text/plain")}
		return opts
	}})

	a, err := m.Create()
	require.NoError(t, err)
	b, err := m.Create()
	require.NoError(t, err)

	a.Engine.SetMimeTypes(admission.MimeAppend, admission.Exact("image/png"))

	assert.Len(t, a.Engine.Options().MimeTypes, 2)
	assert.Len(t, b.Engine.Options().MimeTypes, 1)
}

func TestSession_AddPublishesEvents(t *testing.T) {
	m := NewManager(Config{})
	s, err := m.Create()
	require.NoError(t, err)

	events, unsubscribe := m.Broker().Subscribe(s.ID)
	defer unsubscribe()

	added := s.AddFiles(png("a.png"), text("b.txt"))
	require.Len(t, added, 2)

	ev := nextEvent(t, events)
	assert.Equal(t, EventFileAdded, ev.Type)
	require.Len(t, ev.Files, 1)
	assert.Equal(t, "a.png", ev.Files[0].Name)

	ev = nextEvent(t, events)
	assert.Equal(t, EventFileRejected, ev.Type)
	require.Len(t, ev.Files, 1)
	assert.Equal(t, "b.txt", ev.Files[0].Name)

	s.Engine.DeleteFiles(added[0])
	ev = nextEvent(t, events)
	assert.Equal(t, EventFileDeleted, ev.Type)

	info := s.Info()
	assert.Equal(t, 1, info.FileCount)
	assert.Equal(t, 1, info.InvalidCount)
	assert.Zero(t, info.ValidCount)
}

func TestSession_UploadEvents(t *testing.T) {
	fail := errors.New("receiver down")
	calls := 0
	m := NewManager(Config{
		UploadURL: "local://uploads",
		Transport: admission.TransportFunc(func(ctx context.Context, req *admission.Request) (*admission.Response, error) {
			calls++
			if calls == 1 {
				return nil, fail
			}
			return &admission.Response{Files: req.Files}, nil
		}),
	})
	s, err := m.Create()
	require.NoError(t, err)
	s.AddFiles(png("a.png"))

	events, unsubscribe := m.Broker().Subscribe(s.ID)
	defer unsubscribe()

	up, err := s.Engine.UploadFiles(context.Background())
	require.NoError(t, err)
	_, err = up.Wait()
	require.ErrorIs(t, err, fail)

	ev := nextEvent(t, events)
	assert.Equal(t, EventUploadFailed, ev.Type)
	assert.Contains(t, ev.Error, "receiver down")

	up, err = s.Engine.UploadFiles(context.Background())
	require.NoError(t, err)
	_, err = up.Wait()
	require.NoError(t, err)

	ev = nextEvent(t, events)
	assert.Equal(t, EventFileUploaded, ev.Type)
	require.Len(t, ev.Files, 1)
	assert.Equal(t, admission.StatusUploaded, ev.Files[0].Status)
}

func TestSession_NoUploadURL(t *testing.T) {
	m := NewManager(Config{})
	s, err := m.Create()
	require.NoError(t, err)

	_, err = s.Engine.UploadFiles(context.Background())
	var cfgErr *admission.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, admission.ErrURLRequired)
}

func TestManager_Delete(t *testing.T) {
	var closed []string
	m := NewManager(Config{OnClose: func(id string) { closed = append(closed, id) }})
	s, err := m.Create()
	require.NoError(t, err)

	events, unsubscribe := m.Broker().Subscribe(s.ID)
	defer unsubscribe()

	assert.True(t, m.Delete(s.ID))
	assert.False(t, m.Delete(s.ID))

	ev := nextEvent(t, events)
	assert.Equal(t, EventClosed, ev.Type)
	_, ok := <-events
	assert.False(t, ok, "subscription closed with the session")
	assert.Equal(t, []string{s.ID}, closed)
	assert.Zero(t, m.Broker().Subscribers(s.ID))
}

func TestManager_MaxSessions(t *testing.T) {
	m := NewManager(Config{MaxSessions: 2})

	a, err := m.Create()
	require.NoError(t, err)
	_, err = m.Create()
	require.NoError(t, err)

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions, "recently used sessions are never evicted")

	a.mu.Lock()
	a.lastAccessed = time.Now().Add(-time.Hour)
	a.mu.Unlock()

	c, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())

	_, ok := m.Get(a.ID)
	assert.False(t, ok, "idle session evicted")
	_, ok = m.Get(c.ID)
	assert.True(t, ok)
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m := NewManager(Config{})
	old, _ := m.Create()
	fresh, _ := m.Create()

	old.mu.Lock()
	old.lastAccessed = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()

	assert.Equal(t, 1, m.CleanupOldSessions(time.Hour))
	_, ok := m.Get(old.ID)
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)

	m.CloseAll()
	assert.Zero(t, m.Count())
}

func TestBroker_DropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch, unsubscribe := b.Subscribe("s")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: EventFileAdded, SessionID: "s"})
	}
	assert.Len(t, ch, subscriberBuffer)

	b.Publish(Event{Type: EventFileAdded, SessionID: "other"})
	unsubscribe()
	unsubscribe()
	assert.Zero(t, b.Subscribers("s"))
}

func TestSession_AddFilesRejectionReasons(t *testing.T) {
	m := NewManager(Config{Options: func() admission.Options {
		opts := admission.DefaultOptions()
		opts.MaximumSize = 2
		return opts
	}})
	s, err := m.Create()
	require.NoError(t, err)

	rejected := func(reason string) float64 {
		return testutil.ToFloat64(metrics.FilesRejectedTotal.WithLabelValues(reason))
	}
	sizeBefore, typeBefore := rejected("size"), rejected("content_type")

	added := s.AddFiles(png("big.png"), text("b.txt"))
	require.Len(t, added, 2)

	assert.Equal(t, sizeBefore+1, rejected("size"))
	assert.Equal(t, typeBefore+1, rejected("content_type"))

	v, ok := added[0].Verdict()
	require.True(t, ok)
	assert.False(t, v.SizeOK)
	assert.True(t, v.ContentTypeOK)
}
