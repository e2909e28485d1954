package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocks_SerializesSameID(t *testing.T) {
	l := NewLocks()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("s1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLocks_IndependentIDs(t *testing.T) {
	l := NewLocks()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
	unlockA() // second call is a no-op
	assert.Equal(t, 0, l.Len())
}

type slowStore struct {
	*MemoryStore
	started chan struct{}
	release chan struct{}
}

func (s *slowStore) SweepExpired(ctx context.Context) (int, error) {
	close(s.started)
	<-s.release
	return s.MemoryStore.SweepExpired(ctx)
}

func TestSweeper_NeverOverlaps(t *testing.T) {
	st := &slowStore{MemoryStore: NewMemoryStore(Options{}), started: make(chan struct{}), release: make(chan struct{})}
	sw := NewSweeper(st, time.Hour)
	var swept atomic.Int32
	sw.OnSwept = func(int) { swept.Add(1) }

	errc := make(chan error, 1)
	go func() {
		_, err := sw.SweepOnce(context.Background())
		errc <- err
	}()
	<-st.started
	_, err := sw.SweepOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)
	close(st.release)
	require.NoError(t, <-errc)
	assert.Equal(t, int32(1), swept.Load())
}
