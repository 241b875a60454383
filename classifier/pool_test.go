package classifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tutortoise/drowsiness-service/logging"
)

type fakeSession struct {
	id        int
	fail      bool
	destroyed *atomic.Int32
}

func (s *fakeSession) Run(input []float32) ([]float32, error) {
	if s.fail {
		return nil, errors.New("session broken")
	}
	return []float32{float32(len(input))}, nil
}

func (s *fakeSession) Destroy() { s.destroyed.Add(1) }

func fakeFactory(destroyed *atomic.Int32, fail bool) sessionFactory {
	var n int
	return func() (Session, error) {
		n++
		return &fakeSession{id: n, fail: fail, destroyed: destroyed}, nil
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	var destroyed atomic.Int32
	pool, err := newSessionPool(2, fakeFactory(&destroyed, false), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	ctx := context.Background()
	a, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	m := pool.Metrics()
	if m.InUse != 2 || m.TotalAcquired != 2 || m.Size != 2 || m.Live != 2 {
		t.Errorf("metrics = %+v", m)
	}

	// Pool exhausted: a cancelled context must return promptly.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}

	pool.Release(a)
	pool.Release(b)
	if m := pool.Metrics(); m.InUse != 0 || m.TotalReleased != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestPoolDiscardAndReplenish(t *testing.T) {
	var destroyed atomic.Int32
	pool, err := newSessionPool(1, fakeFactory(&destroyed, true), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := extractWithPool(context.Background(), pool, []float32{1, 2}); err == nil {
		t.Fatal("expected inference error")
	}
	if destroyed.Load() != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed.Load())
	}
	if m := pool.Metrics(); m.Live != 0 || m.Discarded != 1 {
		t.Errorf("metrics = %+v", m)
	}

	pool.replenish()
	if m := pool.Metrics(); m.Live != 1 {
		t.Errorf("live after replenish = %d, want 1", m.Live)
	}
}

func TestPoolClose(t *testing.T) {
	var destroyed atomic.Int32
	pool, err := newSessionPool(3, fakeFactory(&destroyed, false), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	pool.Close()
	pool.Close()
	if destroyed.Load() != 2 {
		t.Errorf("destroyed = %d, want 2 idle sessions", destroyed.Load())
	}

	pool.Release(held)
	if destroyed.Load() != 3 {
		t.Errorf("destroyed = %d, want released session destroyed", destroyed.Load())
	}

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("error = %v, want ErrPoolClosed", err)
	}
}

func TestPoolFactoryFailure(t *testing.T) {
	var destroyed atomic.Int32
	calls := 0
	factory := func() (Session, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("no model")
		}
		return &fakeSession{destroyed: &destroyed}, nil
	}

	if _, err := newSessionPool(3, factory, logging.Discard()); err == nil {
		t.Fatal("expected error")
	}
	if destroyed.Load() != 1 {
		t.Errorf("destroyed = %d, want the one created session", destroyed.Load())
	}
}
