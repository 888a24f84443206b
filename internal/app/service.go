// Package service owns the open player sessions and the background sync
// workers behind them.
package service

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/helpquest/internal/adapters/mq/queue"
	"github.com/okian/helpquest/internal/adapters/mq/worker"
	"github.com/okian/helpquest/internal/app/session"
	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// Default manager configuration.
const (
	defaultQueueSize = 1024
)

// Manager opens, tracks and closes sessions, and runs queued syncs.
type Manager struct {
	mu sync.RWMutex

	sessions map[string]*session.Facade
	coord    *syncer.Coordinator

	queue *queue.InMemoryQueue
	pool  *worker.Pool

	workerCount int
	queueSize   int
	sessionOpts []session.Option

	started bool
	log     logger.Logger
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithWorkerCount sets the number of sync workers.
func WithWorkerCount(count int) Option {
	return func(m *Manager) {
		if count > 0 {
			m.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the sync request queue.
func WithQueueSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.queueSize = size
		}
	}
}

// WithSessionOptions sets the options every new session is created with.
func WithSessionOptions(opts ...session.Option) Option {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

// WithLogger sets a custom logger for the manager.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// New constructs a manager whose sessions sync through coord.
func New(coord *syncer.Coordinator, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*session.Facade),
		coord:       coord,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates the sync queue and starts the workers. The workers outlive
// ctx; Stop ends them after the queue has drained.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	m.queue = queue.NewInMemoryQueue(queue.WithCapacity(m.queueSize))
	m.pool = worker.NewPool(m.workerCount, m.queue, m,
		worker.WithLogger(m.log.Named("worker")))
	m.pool.Start(context.WithoutCancel(ctx))
	m.started = true

	m.log.Info(ctx, "session manager started",
		logger.Int("workers", m.workerCount),
		logger.Int("queueSize", m.queueSize))
	return nil
}

// Stop drains the sync queue and closes every session.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	pool := m.pool
	m.mu.Unlock()

	// workers call back into SyncUser, so the lock must be free here.
	err := pool.Shutdown(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.sessions {
		_ = f.Close(ctx)
		delete(m.sessions, id)
	}
	metrics.UpdateActiveSessions(0)
	m.log.Info(ctx, "session manager stopped")
	return err
}

// Open returns the session of userID, creating and hydrating it first if
// needed. A failed hydration still yields a usable session; the failure
// is visible in its state.
func (m *Manager) Open(ctx context.Context, userID string) (*session.Facade, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	m.mu.Lock()
	if f, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return f, nil
	}
	f := session.New(userID, m.coord, m.sessionOpts...)
	m.sessions[userID] = f
	metrics.UpdateActiveSessions(len(m.sessions))
	m.mu.Unlock()

	if err := f.Hydrate(ctx); err != nil {
		if errors.Is(err, session.ErrClosed) {
			return nil, ErrSessionNotFound
		}
		m.log.Warn(ctx, "hydrate failed", logger.String("user", userID), logger.Error(err))
	}
	return f, nil
}

// Get returns an open session.
func (m *Manager) Get(userID string) (*session.Facade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return f, nil
}

// Close tears down the session of userID.
func (m *Manager) Close(ctx context.Context, userID string) error {
	m.mu.Lock()
	f, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, userID)
	metrics.UpdateActiveSessions(len(m.sessions))
	m.mu.Unlock()

	return f.Close(ctx)
}

// TriggerSync queues a background sync of userID.
func (m *Manager) TriggerSync(ctx context.Context, userID string) error {
	if _, err := m.Get(userID); err != nil {
		return err
	}

	m.mu.RLock()
	started, q := m.started, m.queue
	m.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	r := queue.Request{
		ID:          uuid.NewString(),
		UserID:      userID,
		RequestedAt: time.Now(),
	}
	if !q.Enqueue(ctx, r) {
		return ErrQueueFull
	}
	m.log.Debug(ctx, "sync queued", logger.String("user", userID), logger.String("request", r.ID))
	return nil
}

// SyncUser runs one sync of userID. A sync overtaken by a newer one is
// not a failure, and neither is a session closed in the meantime.
func (m *Manager) SyncUser(ctx context.Context, userID string) error {
	f, err := m.Get(userID)
	if err != nil {
		m.log.Debug(ctx, "skipping sync of closed session", logger.String("user", userID))
		return nil
	}
	err = f.Sync(ctx)
	switch {
	case err == nil, errors.Is(err, syncer.ErrSyncSuperseded), errors.Is(err, session.ErrClosed):
		return nil
	default:
		return err
	}
}

// Stats summarizes the manager for monitoring.
type Stats struct {
	Started       bool  `json:"started"`
	Sessions      int   `json:"sessions"`
	WorkerCount   int   `json:"workerCount"`
	QueueCapacity int   `json:"queueCapacity"`
	QueueLength   int   `json:"queueLength"`
	SyncsHandled  int64 `json:"syncsHandled"`
}

// GetStats returns manager statistics.
func (m *Manager) GetStats(ctx context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		Started:       m.started,
		Sessions:      len(m.sessions),
		WorkerCount:   m.workerCount,
		QueueCapacity: m.queueSize,
	}
	if m.queue != nil {
		st.QueueLength = m.queue.Len(ctx)
	}
	if m.pool != nil {
		st.SyncsHandled = m.pool.Processed()
	}
	metrics.UpdateActiveSessions(st.Sessions)
	return st
}
