package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tutortoise/drowsiness-service/logging"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

var ErrPoolClosed = errors.New("pool is closed")

// Session is one loaded backbone session. Run is not safe for concurrent
// use, so each Session is handed to a single caller at a time.
type Session interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

type sessionFactory func() (Session, error)

// SessionPool hands out a fixed number of backbone sessions.
type SessionPool struct {
	sessions   chan Session
	size       int
	newSession sessionFactory
	log        *slog.Logger

	mu         sync.Mutex
	closed     bool
	live       int
	lastErrors []error
	done       chan struct{}

	metrics *poolMetrics
}

type poolMetrics struct {
	mu              sync.Mutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	discarded       int64
	waitTime        time.Duration
}

// PoolMetrics is a snapshot of pool activity.
type PoolMetrics struct {
	Size            int     `json:"pool_size"`
	Live            int     `json:"live_sessions"`
	InUse           int     `json:"sessions_in_use"`
	TotalAcquired   int64   `json:"total_acquired"`
	TotalReleased   int64   `json:"total_released"`
	AcquireFailures int64   `json:"acquire_failures"`
	Discarded       int64   `json:"discarded"`
	AvgWaitMs       float64 `json:"avg_wait_ms"`
}

func newSessionPool(size int, factory sessionFactory, log *slog.Logger) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool{
		sessions:   make(chan Session, size),
		size:       size,
		newSession: factory,
		log:        logging.Or(log).With("component", "session_pool"),
		done:       make(chan struct{}),
		metrics:    &poolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.live++
		pool.sessions <- session
	}

	go pool.healthCheck(HealthCheckPeriod)

	return pool, nil
}

// Acquire waits for a free session, up to AcquireTimeout.
func (p *SessionPool) Acquire(ctx context.Context) (Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a healthy session to the pool.
func (p *SessionPool) Release(session Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		p.live--
		return
	}
	p.sessions <- session
}

// Discard destroys a session that failed; the health check replaces it.
func (p *SessionPool) Discard(session Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.discarded++
	p.metrics.mu.Unlock()

	session.Destroy()

	p.mu.Lock()
	p.live--
	p.mu.Unlock()
}

// Close destroys idle sessions and stops the health check. Sessions in use
// are destroyed when released.
func (p *SessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
		p.live--
	}
}

func (p *SessionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *SessionPool) healthCheck(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish recreates discarded sessions.
func (p *SessionPool) replenish() {
	p.mu.Lock()
	missing := p.size - p.live
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.newSession()
		if err != nil {
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.live++
		p.sessions <- session
		p.mu.Unlock()
	}
}

func (p *SessionPool) recordError(err error) {
	p.log.Warn("session replenish failed", "error", err)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// Metrics returns a snapshot of pool activity.
func (p *SessionPool) Metrics() PoolMetrics {
	p.mu.Lock()
	live := p.live
	p.mu.Unlock()

	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	m := PoolMetrics{
		Size:            p.size,
		Live:            live,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Discarded:       p.metrics.discarded,
	}
	if p.metrics.totalAcquired > 0 {
		m.AvgWaitMs = float64(p.metrics.waitTime.Microseconds()) / 1000 / float64(p.metrics.totalAcquired)
	}
	return m
}
