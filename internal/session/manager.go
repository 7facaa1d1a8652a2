// Package session keeps one admission engine per drop session and publishes
// each engine's lifecycle events.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/filedrop/backend/internal/admission"
	"github.com/filedrop/backend/internal/log"
	"github.com/filedrop/backend/internal/metrics"
	"github.com/filedrop/backend/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxSessions limits concurrent sessions when Config leaves it unset.
const DefaultMaxSessions = 100

// SessionKeepAliveWindow protects recently used sessions from eviction.
const SessionKeepAliveWindow = 5 * time.Minute

// ErrTooManySessions is returned when no session can be evicted to make room.
var ErrTooManySessions = errors.New("too many active sessions")

// Config configures a Manager.
type Config struct {
	MaxSessions int
	// UploadURL is given to every engine. Empty leaves engines without a URL.
	UploadURL string
	Transport admission.Transport
	// Options returns the admission options for a new session. Nil uses the
	// engine defaults.
	Options func() admission.Options
	// OnClose runs after a session is removed.
	OnClose func(sessionID string)
}

// Session is one drop session.
type Session struct {
	ID        string
	Engine    *admission.Engine
	CreatedAt time.Time

	mu           sync.Mutex
	lastAccessed time.Time
	broker       *Broker
}

// LastAccessed returns when the session was last used.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccessed = time.Now()
	s.mu.Unlock()
}

// AddFiles admits the inputs through the session's engine, records admission
// metrics and publishes rejected files. Valid files are published by the
// engine's DidAdd hook.
func (s *Session) AddFiles(inputs ...admission.Input) []*admission.FileRecord {
	added := s.Engine.AddFiles(inputs...)

	var rejected []*admission.FileRecord
	for _, r := range added {
		if r.Status() == admission.StatusInvalid {
			verdict, _ := r.Verdict()
			metrics.RecordAdmitted(false, verdict.Reason())
			rejected = append(rejected, r)
			continue
		}
		metrics.RecordAdmitted(true, "")
	}
	if len(rejected) > 0 {
		s.broker.Publish(Event{Type: EventFileRejected, SessionID: s.ID, Files: admission.Infos(rejected)})
	}
	return added
}

// Info summarizes the session.
func (s *Session) Info() models.SessionInfo {
	snap := s.Engine.Snapshot()
	return models.SessionInfo{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed(),
		FileCount:    len(snap.Files),
		ValidCount:   len(snap.Valid),
		InvalidCount: len(snap.Invalid),
		RequestSize:  snap.RequestSize,
		Uploading:    s.Engine.UploadStatus().Uploading,
	}
}

// Manager handles active drop sessions.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	cfg      Config
	broker   *Broker
	logger   zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		broker:   NewBroker(),
		logger:   log.WithComponent("session"),
	}
}

// Broker returns the event broker of all sessions.
func (m *Manager) Broker() *Broker { return m.broker }

// Create opens a new session with its own engine.
func (m *Manager) Create() (*Session, error) {
	m.evictIfNeeded()

	now := time.Now()
	s := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		lastAccessed: now,
		broker:       m.broker,
	}

	var opts *admission.Options
	if m.cfg.Options != nil {
		o := m.cfg.Options()
		opts = &o
	}
	var url admission.URLSource
	if m.cfg.UploadURL != "" {
		url = admission.StaticURL(m.cfg.UploadURL)
	}

	s.Engine = admission.NewEngine(admission.Config{
		SessionID: s.ID,
		URL:       url,
		Options:   opts,
		Transport: m.cfg.Transport,
		Hooks:     m.hooks(s.ID),
	})

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(count)
	m.logger.Info().Str("session_id", s.ID).Msg("session created")
	return s, nil
}

func (m *Manager) hooks(sessionID string) admission.Hooks {
	return admission.Hooks{
		DidAdd: func(records ...*admission.FileRecord) {
			m.broker.Publish(Event{Type: EventFileAdded, SessionID: sessionID, Files: admission.Infos(records)})
		},
		DidDelete: func(records ...*admission.FileRecord) {
			metrics.RecordDeleted(len(records))
			m.broker.Publish(Event{Type: EventFileDeleted, SessionID: sessionID, Files: admission.Infos(records)})
		},
		DidUpload: func(records ...*admission.FileRecord) {
			metrics.RecordUploaded(len(records))
			m.broker.Publish(Event{Type: EventFileUploaded, SessionID: sessionID, Files: admission.Infos(records)})
		},
		DidFail: func(err error, records ...*admission.FileRecord) {
			m.broker.Publish(Event{
				Type:      EventUploadFailed,
				SessionID: sessionID,
				Files:     admission.Infos(records),
				Error:     err.Error(),
			})
		},
	}
}

// Get returns a session by ID and marks it used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Touch updates the last access time of a session.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Delete closes a session, aborting its upload.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return false
	}

	m.close(s)
	metrics.SetActiveSessions(count)
	return true
}

func (m *Manager) close(s *Session) {
	s.Engine.AbortUpload()
	m.broker.Publish(Event{Type: EventClosed, SessionID: s.ID})
	m.broker.CloseSession(s.ID)
	if m.cfg.OnClose != nil {
		m.cfg.OnClose(s.ID)
	}
	m.logger.Info().Str("session_id", s.ID).Msg("session closed")
}

// List returns every session, oldest first.
func (m *Manager) List() []models.SessionInfo {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	out := make([]models.SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// evictIfNeeded closes the least recently used idle session when at capacity.
func (m *Manager) evictIfNeeded() {
	m.mu.Lock()
	if len(m.sessions) < m.cfg.MaxSessions {
		m.mu.Unlock()
		return
	}

	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)
	var victim *Session
	for _, s := range m.sessions {
		last := s.LastAccessed()
		if last.After(keepAliveCutoff) || s.Engine.UploadStatus().Uploading {
			continue
		}
		if victim == nil || last.Before(victim.LastAccessed()) {
			victim = s
		}
	}
	if victim != nil {
		delete(m.sessions, victim.ID)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if victim != nil {
		m.close(victim)
		metrics.SetActiveSessions(count)
		m.logger.Info().Str("session_id", victim.ID).Msg("evicted idle session to free capacity")
	}
}

// CleanupOldSessions closes sessions idle for longer than maxAge that are not
// uploading. It returns how many were closed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastAccessed().Before(cutoff) && !s.Engine.UploadStatus().Uploading {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		m.close(s)
	}
	if len(expired) > 0 {
		metrics.SetActiveSessions(count)
		m.logger.Info().Int("count", len(expired)).Msg("cleaned up idle sessions")
	}
	return len(expired)
}

// RunCleanup sweeps idle sessions every interval until ctx ends. Extra sweeps
// run on the same schedule.
func (m *Manager) RunCleanup(ctx context.Context, interval, maxAge time.Duration, extra ...func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldSessions(maxAge)
			for _, fn := range extra {
				fn()
			}
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.close(s)
	}
	metrics.SetActiveSessions(0)
}
