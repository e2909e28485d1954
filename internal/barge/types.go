package barge

import (
	"context"
	"time"

	"github.com/chadiek/voice-order/internal/session"
)

// Config holds the thresholds for barge-in detection.
type Config struct {
	// Debounce is the minimum gap between two interrupt signals for a session.
	Debounce time.Duration
	// MinChars is the trimmed partial length a caller must exceed to interrupt.
	MinChars int
}

// DefaultPhoneLine is tuned for 8kHz telephone audio with streaming partials.
func DefaultPhoneLine() Config {
	return Config{Debounce: 200 * time.Millisecond, MinChars: 1}
}

// Events allows the host to react to barge-in.
type Events struct {
	// OnTTSStop should stop audio output immediately (e.g. clear the
	// telephony playback buffer).
	OnTTSStop func(sessionID string, ts time.Time)
}

// Store is the part of session.Store the handler writes through.
type Store interface {
	Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error)
}

// Observer counts interrupts; *metrics.Metrics satisfies it.
type Observer interface {
	ObserveBargeIn()
}
