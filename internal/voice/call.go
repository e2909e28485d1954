package voice

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/voice-order/internal/orchestrator"
)

// interruptedMarker is appended to the spoken text of a reply the caller cut off.
const interruptedMarker = "[interrupted]"

// chunkReply splits an assistant reply into sentence-like chunks so spoken
// text is only reported once the matching audio went out.
// Heuristic: split on '.', '?', '!' and newlines, retaining punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			if chunk := strings.TrimSpace(b.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if tail := strings.TrimSpace(b.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// Deps are the collaborators of a Call.
type Deps struct {
	Transcriber Transcriber
	Turns       TurnHandler
	Speaker     Speaker
	Sink        Sink
	Barge       Interrupter
	// OnTurn is invoked once a caller utterance was answered. spoken is exactly
	// what reached the caller, marked when interrupted.
	OnTurn func(user, spoken string)
	// OnEnd is invoked after the final reply of a call has been spoken.
	OnEnd func(orchestrator.Reply)
}

// Call runs STT -> turn processor -> TTS for one phone call.
type Call struct {
	id string
	d  Deps

	// speakMu keeps the greeting and replies from overlapping.
	speakMu sync.Mutex

	mu    sync.Mutex
	ended bool
}

// NewCall constructs a Call for the session id.
func NewCall(sessionID string, d Deps) *Call {
	if d.Sink == nil {
		d.Sink = nopSink{}
	}
	if d.Barge == nil {
		d.Barge = nopInterrupter{}
	}
	return &Call{id: sessionID, d: d}
}

// Start connects the transcriber and begins processing. It returns a stop function.
func (c *Call) Start(ctx context.Context) (func(), error) {
	if err := c.d.Transcriber.Connect(); err != nil {
		return nil, err
	}

	// Partials only matter for barge-in.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-c.d.Transcriber.Partials():
				if !ok {
					return
				}
				if p != "" && c.d.Barge.OnInterimTranscript(ctx, c.id, p) {
					c.d.Sink.Reset()
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case utterance, ok := <-c.d.Transcriber.Finalize():
				if !ok {
					return
				}
				if c.handle(ctx, utterance) {
					return
				}
			}
		}
	}()

	stop := func() {
		_ = c.d.Transcriber.Close()
	}
	return stop, nil
}

// handle answers one finalized utterance and reports whether the call ended.
func (c *Call) handle(ctx context.Context, utterance string) bool {
	prompt := strings.TrimSpace(utterance)
	if prompt == "" || c.Ended() {
		return c.Ended()
	}
	log.Printf("[%s] heard(final): %s", c.id, prompt)

	// Wait briefly for the caller to go quiet so we don't talk over them.
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	for waitCtx.Err() == nil {
		if !c.d.Transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	waitCancel()

	reply := c.d.Turns.HandleTurn(ctx, c.id, prompt)
	spoken := c.Say(ctx, reply.Text)
	if c.d.OnTurn != nil {
		c.d.OnTurn(prompt, spoken)
	}
	if !reply.EndCall {
		return false
	}
	c.mu.Lock()
	c.ended = true
	c.mu.Unlock()
	if c.d.OnEnd != nil {
		c.d.OnEnd(reply)
	}
	return true
}

// Say speaks text chunk by chunk and returns what was actually delivered.
// Playback stops as soon as the interrupter cancels the playback token.
func (c *Call) Say(ctx context.Context, text string) string {
	chunks := chunkReply(text)
	if len(chunks) == 0 {
		return ""
	}
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	playback, err := c.d.Barge.MarkTTSPlaying(ctx, c.id, true)
	if err != nil {
		log.Printf("[%s] playback not started: %v", c.id, err)
		return ""
	}
	ttsCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(playback, cancel)
	defer stopWatch()

	var spoken []string
	for _, chunk := range chunks {
		if playback.Err() != nil || ctx.Err() != nil {
			break
		}
		audio, errc := c.d.Speaker.StreamMulaw(ttsCtx, chunk)
		openAudio, openErr := true, true
		for openAudio || openErr {
			select {
			case b, ok := <-audio:
				if !ok {
					openAudio = false
					continue
				}
				if len(b) > 0 && playback.Err() == nil {
					c.d.Sink.Write(b)
				}
			case e, ok := <-errc:
				if ok && e != nil {
					log.Printf("[%s] tts stream error: %v", c.id, e)
				}
				openErr = false
			case <-ctx.Done():
				openAudio, openErr = false, false
			}
		}
		if playback.Err() != nil {
			break
		}
		spoken = append(spoken, chunk)
	}

	interrupted := playback.Err() != nil && ctx.Err() == nil
	if interrupted {
		spoken = append(spoken, interruptedMarker)
		return strings.Join(spoken, " ")
	}
	c.d.Sink.Flush()
	if _, err := c.d.Barge.MarkTTSPlaying(ctx, c.id, false); err != nil {
		log.Printf("[%s] playback stop not recorded: %v", c.id, err)
	}
	return strings.Join(spoken, " ")
}

// Feed sends inbound μ-law audio to the transcriber.
func (c *Call) Feed(mulaw []byte) {
	_ = c.d.Transcriber.SendAudio(mulaw)
}

// Ended reports whether the call's final reply has been spoken.
func (c *Call) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}
