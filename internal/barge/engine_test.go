package barge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voice-order/internal/session"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type counter struct{ n int32 }

func (c *counter) ObserveBargeIn() { atomic.AddInt32(&c.n, 1) }

func setup(t *testing.T) (*Handler, session.Store, *clock, *counter, string) {
	t.Helper()
	store := session.NewMemoryStore(session.Options{})
	s, err := store.Create(context.Background(), "CA1", "+15550100000")
	require.NoError(t, err)
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	obs := &counter{}
	h := NewHandler(DefaultPhoneLine(), store, session.NewLocks(), WithClock(c.Now), WithObserver(obs))
	return h, store, c, obs, s.ID
}

func TestHandler_InterruptsPlayback(t *testing.T) {
	ctx := context.Background()
	h, store, _, obs, id := setup(t)

	token, err := h.MarkTTSPlaying(ctx, id, true)
	require.NoError(t, err)
	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.TTSActive)
	assert.Equal(t, session.ModeSpeaking, s.Mode)

	assert.False(t, h.OnInterimTranscript(ctx, id, " a "), "single character is noise")
	assert.NoError(t, token.Err())

	assert.True(t, h.OnInterimTranscript(ctx, id, "wait"))
	assert.ErrorIs(t, token.Err(), context.Canceled)
	s, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, s.TTSActive)
	assert.True(t, s.Interrupted)
	assert.Equal(t, session.ModeListening, s.Mode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&obs.n))
	assert.False(t, h.Speaking(id))
}

func TestHandler_IgnoresPartialsWhileSilent(t *testing.T) {
	h, _, _, obs, id := setup(t)
	assert.False(t, h.OnInterimTranscript(context.Background(), id, "hello there"))
	assert.Zero(t, atomic.LoadInt32(&obs.n))
}

func TestHandler_ConcurrentSignalsTransitionOnce(t *testing.T) {
	ctx := context.Background()
	h, _, _, obs, id := setup(t)
	_, err := h.MarkTTSPlaying(ctx, id, true)
	require.NoError(t, err)

	var fired int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.OnInterimTranscript(ctx, id, "stop please") {
				atomic.AddInt32(&fired, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fired)
	assert.Equal(t, int32(1), atomic.LoadInt32(&obs.n))
}

func TestHandler_Debounce(t *testing.T) {
	ctx := context.Background()
	h, _, c, _, id := setup(t)

	_, err := h.MarkTTSPlaying(ctx, id, true)
	require.NoError(t, err)
	require.True(t, h.OnInterimTranscript(ctx, id, "hold on"))

	// playback resumes but a second signal inside the window is dropped
	c.Advance(50 * time.Millisecond)
	_, err = h.MarkTTSPlaying(ctx, id, true)
	require.NoError(t, err)
	c.Advance(100 * time.Millisecond)
	assert.False(t, h.OnInterimTranscript(ctx, id, "hold on"))
	assert.True(t, h.Speaking(id))

	c.Advance(60 * time.Millisecond)
	assert.True(t, h.OnInterimTranscript(ctx, id, "hold on"))
}

func TestHandler_StopPlaybackAndForget(t *testing.T) {
	ctx := context.Background()
	h, store, _, _, id := setup(t)

	token, err := h.MarkTTSPlaying(ctx, id, true)
	require.NoError(t, err)
	_, err = h.MarkTTSPlaying(ctx, id, false)
	require.NoError(t, err)
	assert.Error(t, token.Err())
	s, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, s.Interrupted)
	assert.False(t, s.TTSActive)

	token, err = h.MarkTTSPlaying(ctx, id, true)
	require.NoError(t, err)
	h.Forget(id)
	assert.Error(t, token.Err())
	assert.False(t, h.Speaking(id))
}

func TestHandler_UnknownSession(t *testing.T) {
	h, _, _, _, _ := setup(t)
	_, err := h.MarkTTSPlaying(context.Background(), "missing", true)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestHandler_OnTTSStopEvent(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(session.Options{})
	s, err := store.Create(ctx, "CA2", "")
	require.NoError(t, err)
	var stopped string
	h := NewHandler(Config{}, store, nil, WithEvents(Events{OnTTSStop: func(id string, _ time.Time) { stopped = id }}))
	_, err = h.MarkTTSPlaying(ctx, s.ID, true)
	require.NoError(t, err)
	require.True(t, h.OnInterimTranscript(ctx, s.ID, "excuse me"))
	assert.Equal(t, s.ID, stopped)
}
