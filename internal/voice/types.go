package voice

import (
	"context"
	"time"

	"github.com/chadiek/voice-order/internal/orchestrator"
)

// Transcriber is the minimal interface for realtime STT.
// It accepts 8kHz μ-law mono buffers and emits live and finalized text.
type Transcriber interface {
	Connect() error
	SendAudio(mulaw []byte) error
	Partials() <-chan string
	Finalize() <-chan string
	// RecentlyDetectedVoice returns true if voice energy was seen within the given window.
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// Speaker streams 8kHz μ-law mono audio for the given text.
type Speaker interface {
	StreamMulaw(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Sink consumes outbound μ-law audio (e.g. Twilio media frames).
// Implementations should buffer internally and pace delivery.
type Sink interface {
	Write(audio []byte)
	Flush()
	// Reset drops any queued frames immediately (used for barge-in).
	Reset()
}

// TurnHandler answers one finalized utterance.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID, utterance string) orchestrator.Reply
}

// Interrupter tracks playback and decides when a partial transcript cuts it
// off; *barge.Handler satisfies it.
type Interrupter interface {
	OnInterimTranscript(ctx context.Context, sessionID, partial string) bool
	MarkTTSPlaying(ctx context.Context, sessionID string, playing bool) (context.Context, error)
}

type nopSink struct{}

func (nopSink) Write(_ []byte) {}
func (nopSink) Flush()         {}
func (nopSink) Reset()         {}

// nopInterrupter never interrupts; playback tokens only end with the call.
type nopInterrupter struct{}

func (nopInterrupter) OnInterimTranscript(context.Context, string, string) bool { return false }
func (nopInterrupter) MarkTTSPlaying(ctx context.Context, _ string, _ bool) (context.Context, error) {
	return ctx, nil
}
