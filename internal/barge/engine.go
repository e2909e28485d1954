package barge

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/voice-order/internal/session"
)

// callState is the per-session playback bookkeeping.
type callState struct {
	speaking   bool
	lastSignal time.Time
	playback   context.Context
	cancel     context.CancelFunc
}

// Handler detects barge-in from interim transcripts and cancels playback.
//
// Each session has a playback token: a context that is cancelled when the
// caller interrupts. MarkTTSPlaying and OnInterimTranscript for the same
// session are serialized on the shared session lock.
type Handler struct {
	cfg   Config
	ev    Events
	store Store
	locks *session.Locks
	obs   Observer
	now   func() time.Time

	mu    sync.Mutex
	calls map[string]*callState
}

// Option customizes a Handler.
type Option func(*Handler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(h *Handler) { h.now = now } }

// WithObserver reports each interrupt.
func WithObserver(o Observer) Option { return func(h *Handler) { h.obs = o } }

// WithEvents sets the host callbacks.
func WithEvents(ev Events) Option { return func(h *Handler) { h.ev = ev } }

// NewHandler builds a Handler. locks must be the same set the turn processor
// uses when committing session fields.
func NewHandler(cfg Config, store Store, locks *session.Locks, opts ...Option) *Handler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultPhoneLine().Debounce
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultPhoneLine().MinChars
	}
	if locks == nil {
		locks = session.NewLocks()
	}
	h := &Handler{cfg: cfg, store: store, locks: locks, now: time.Now, calls: make(map[string]*callState)}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) state(id string) *callState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.calls[id]
	if !ok {
		st = &callState{}
		h.calls[id] = st
	}
	return st
}

// MarkTTSPlaying records that synthesized speech started or stopped. Starting
// returns a fresh playback token; stopping cancels the current one.
func (h *Handler) MarkTTSPlaying(ctx context.Context, id string, playing bool) (context.Context, error) {
	unlock := h.locks.Lock(id)
	defer unlock()

	st := h.state(id)
	if st.cancel != nil {
		st.cancel()
		st.playback, st.cancel = nil, nil
	}
	_, err := h.store.Update(ctx, id, func(s *session.Session) error {
		s.TTSActive = playing
		if playing {
			s.Mode = session.ModeSpeaking
			s.Interrupted = false
		} else {
			s.Mode = session.ModeListening
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.speaking = playing
	if !playing {
		return nil, nil
	}
	st.playback, st.cancel = context.WithCancel(context.Background())
	return st.playback, nil
}

// OnInterimTranscript is fed every partial transcript. It reports whether the
// partial interrupted playback.
func (h *Handler) OnInterimTranscript(ctx context.Context, id, partial string) bool {
	text := strings.TrimSpace(partial)
	if len([]rune(text)) <= h.cfg.MinChars {
		return false
	}

	unlock := h.locks.Lock(id)
	defer unlock()

	st := h.state(id)
	now := h.now()
	if !st.speaking {
		return false
	}
	if !st.lastSignal.IsZero() && now.Sub(st.lastSignal) < h.cfg.Debounce {
		return false
	}
	_, err := h.store.Update(ctx, id, func(s *session.Session) error {
		s.TTSActive = false
		s.Interrupted = true
		s.Mode = session.ModeListening
		return nil
	})
	if err != nil {
		log.Printf("[%s] barge-in not persisted: %v", id, err)
		return false
	}
	st.speaking = false
	st.lastSignal = now
	if st.cancel != nil {
		st.cancel()
		st.playback, st.cancel = nil, nil
	}
	log.Printf("[%s] barge-in: %q", id, text)
	if h.obs != nil {
		h.obs.ObserveBargeIn()
	}
	if h.ev.OnTTSStop != nil {
		h.ev.OnTTSStop(id, now)
	}
	return true
}

// Speaking reports whether playback is active for the session.
func (h *Handler) Speaking(id string) bool {
	unlock := h.locks.Lock(id)
	defer unlock()
	return h.state(id).speaking
}

// Forget cancels any playback and drops the session's state.
func (h *Handler) Forget(id string) {
	unlock := h.locks.Lock(id)
	defer unlock()
	h.mu.Lock()
	st, ok := h.calls[id]
	delete(h.calls, id)
	h.mu.Unlock()
	if ok && st.cancel != nil {
		st.cancel()
	}
}
