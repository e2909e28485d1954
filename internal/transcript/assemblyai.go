package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
)

// SILENCE_THRESHOLD is the base inactivity window required before we consider an utterance complete.
// Keep conservative to avoid cutting the caller mid-sentence.
const SILENCE_THRESHOLD = 700 * time.Millisecond

// CONTINUATION_EXTENSION extends the threshold when the last word implies continuation.
const CONTINUATION_EXTENSION = 1200 * time.Millisecond

// STABILIZATION_GRACE absorbs late ASR updates after the silence threshold.
const STABILIZATION_GRACE = 250 * time.Millisecond

const defaultURL = "wss://streaming.assemblyai.com/v3/ws"

// Options describe the audio the service is fed.
type Options struct {
	// URL overrides the streaming endpoint.
	URL        string
	SampleRate int
	// Encoding is "pcm_mulaw" for telephone audio or "pcm_s16le".
	Encoding string
	// FinalizeOnEndOfTurn emits the utterance as soon as the server marks the
	// turn complete instead of waiting for local silence detection.
	FinalizeOnEndOfTurn bool
}

// PhoneLine is 8kHz μ-law, the format of Twilio Media Streams.
func PhoneLine() Options {
	return Options{URL: defaultURL, SampleRate: 8000, Encoding: "pcm_mulaw"}
}

type frame struct {
	kind int
	data []byte
}

// AssemblyAIService is a streaming transcription session.
type AssemblyAIService struct {
	apiKey      string
	opts        Options
	conn        *websocket.Conn
	transcripts chan string
	finalizeCh  chan string
	outbound    chan frame
	stopCh      chan struct{}
	mu          sync.RWMutex
	wmu         sync.Mutex
	connected   bool

	// utterance accumulation
	accMu                   sync.Mutex
	latestFullTranscript    string
	committedFullTranscript string
	lastUpdateTime          time.Time
	// resettable timer to detect end-of-utterance based on inactivity
	silenceTimer *time.Timer
	// last time we detected non-silent voice energy in the incoming audio
	lastVoiceTime time.Time
}

// AssemblyAI message types
type BeginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type TurnMessage struct {
	Type           string `json:"type"`
	Transcript     string `json:"transcript"`
	EndOfTurn      bool   `json:"end_of_turn"`
	TurnFormatted  bool   `json:"turn_is_formatted"`
	AudioStartTime int64  `json:"audio_start_time,omitempty"`
	AudioEndTime   int64  `json:"audio_end_time,omitempty"`
}

type TerminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewAssemblyAIService creates a new transcription session.
func NewAssemblyAIService(apiKey string, opts Options) *AssemblyAIService {
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	if opts.Encoding == "" {
		opts.Encoding = "pcm_mulaw"
	}
	return &AssemblyAIService{
		apiKey:      apiKey,
		opts:        opts,
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		outbound:    make(chan frame, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Finalize returns a channel signaling end-of-utterance with the delta text
func (s *AssemblyAIService) Finalize() <-chan string { return s.finalizeCh }

// Partials streams every interim transcript; used for barge-in.
func (s *AssemblyAIService) Partials() <-chan string { return s.transcripts }

// Connect establishes the WebSocket connection to AssemblyAI
func (s *AssemblyAIService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("AssemblyAI API key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", strconv.Itoa(s.opts.SampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", s.opts.Encoding)
	wsURL := s.opts.URL + "?" + params.Encode()

	headers := map[string][]string{
		"Authorization": {s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	keyPreview := s.apiKey
	if len(keyPreview) > 8 {
		keyPreview = keyPreview[:8]
	}
	log.Printf("Connecting to AssemblyAI at %s (key %s...)", wsURL, keyPreview)

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("AssemblyAI connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.lastUpdateTime = time.Now()
	s.lastVoiceTime = time.Now()

	go s.handleMessages()
	go s.sendLoop()
	return nil
}

// SendAudio queues audio to be sent to AssemblyAI.
func (s *AssemblyAIService) SendAudio(audio []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to AssemblyAI")
	}
	s.detectVoiceActivity(audio)
	select {
	case s.outbound <- frame{kind: websocket.BinaryMessage, data: audio}:
	default:
		log.Println("Warning: AssemblyAI audio buffer full, dropping packet")
	}
	return nil
}

// ForceEndpoint asks the server to close the current turn after the audio
// already queued.
func (s *AssemblyAIService) ForceEndpoint() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to AssemblyAI")
	}
	s.outbound <- frame{kind: websocket.TextMessage, data: []byte(`{"type":"ForceEndpoint"}`)}
	return nil
}

// detectVoiceActivity updates lastVoiceTime if the buffer carries voice energy above a threshold.
func (s *AssemblyAIService) detectVoiceActivity(audio []byte) {
	var samples []int16
	if s.opts.Encoding == "pcm_mulaw" {
		samples = decodeMulaw(audio)
	} else {
		samples = decodeS16LE(audio)
	}
	// 10ms of audio at the configured rate
	if len(samples) < s.opts.SampleRate/100 {
		return
	}
	step := 1
	if len(samples) > 1600 {
		step = 2
	}
	var sumSquares float64
	count := 0
	for i := 0; i < len(samples); i += step {
		v := float64(samples[i])
		sumSquares += v * v
		count++
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// RecentlyDetectedVoice reports whether non-silent voice energy was observed within the given window.
func (s *AssemblyAIService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the session and closes the output channels.
func (s *AssemblyAIService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	s.accMu.Lock()
	if s.silenceTimer != nil {
		_ = s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.accMu.Unlock()
	if s.conn != nil {
		s.wmu.Lock()
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		s.wmu.Unlock()
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	// Best-effort flush of any pending delta before closing channels
	s.flushPendingDelta()
	close(s.transcripts)
	close(s.finalizeCh)
	log.Println("AssemblyAI connection closed")
	return nil
}

func (s *AssemblyAIService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Printf("Error reading AssemblyAI message: %v", err)
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *AssemblyAIService) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg BeginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Begin message: %v", err)
			return
		}
		log.Printf("AssemblyAI session began: ID=%s, ExpiresAt=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg TurnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Turn message: %v", err)
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case s.transcripts <- msg.Transcript:
		default:
		}
		s.accMu.Lock()
		s.latestFullTranscript = msg.Transcript
		s.lastUpdateTime = time.Now()
		if msg.EndOfTurn && s.opts.FinalizeOnEndOfTurn {
			if s.silenceTimer != nil {
				_ = s.silenceTimer.Stop()
			}
			delta := s.commitDelta()
			s.accMu.Unlock()
			s.deliver(delta)
			return
		}
		// reset or start the silence timer; finalize fires only after inactivity
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(SILENCE_THRESHOLD, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.accMu.Unlock()
	case "Termination":
		var msg TerminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Termination message: %v", err)
			return
		}
		log.Printf("AssemblyAI session terminated: AudioDuration=%.2fs, SessionDuration=%.2fs", msg.AudioDurationSeconds, msg.SessionDurationSeconds)
	case "Error":
		var msg ErrorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Error message: %v", err)
			return
		}
		log.Printf("AssemblyAI error: %s", msg.Error)
	default:
		log.Printf("Unknown AssemblyAI message type: %s", base.Type)
	}
}

// commitDelta marks the latest transcript as delivered and returns the words
// added since the previous commit. accMu must be held.
func (s *AssemblyAIService) commitDelta() string {
	latest := s.latestFullTranscript
	base := s.committedFullTranscript
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	s.committedFullTranscript = latest
	return delta
}

func (s *AssemblyAIService) deliver(delta string) {
	if delta == "" {
		return
	}
	select {
	case <-s.stopCh:
	case s.finalizeCh <- delta:
	}
}

// finalizeDueToSilence is invoked after SILENCE_THRESHOLD of inactivity.
func (s *AssemblyAIService) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	now := time.Now()
	threshold := SILENCE_THRESHOLD
	if isContinuationLikely(s.latestFullTranscript) {
		threshold += CONTINUATION_EXTENSION
	}
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		s.rearm(wait)
		s.accMu.Unlock()
		return
	}
	lastUpdateAt := s.lastUpdateTime
	s.accMu.Unlock()

	time.Sleep(STABILIZATION_GRACE)

	s.accMu.Lock()
	if s.lastUpdateTime.After(lastUpdateAt) {
		threshold = SILENCE_THRESHOLD
		if isContinuationLikely(s.latestFullTranscript) {
			threshold += CONTINUATION_EXTENSION
		}
		wait := threshold
		if rem := threshold - time.Since(s.lastUpdateTime); rem < wait {
			wait = rem
		}
		s.rearm(wait)
		s.accMu.Unlock()
		return
	}
	delta := s.commitDelta()
	s.accMu.Unlock()
	s.deliver(delta)
}

// rearm schedules the next silence check. accMu must be held.
func (s *AssemblyAIService) rearm(wait time.Duration) {
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	if s.silenceTimer == nil {
		s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		return
	}
	_ = s.silenceTimer.Stop()
	s.silenceTimer.Reset(wait)
}

// flushPendingDelta sends any remaining uncommitted transcript delta without
// blocking indefinitely.
func (s *AssemblyAIService) flushPendingDelta() {
	s.accMu.Lock()
	delta := s.commitDelta()
	s.accMu.Unlock()
	if delta == "" {
		return
	}
	select {
	case s.finalizeCh <- delta:
	case <-time.After(200 * time.Millisecond):
		log.Printf("Warning: AssemblyAI flush timed out delivering final delta")
	}
}

// isContinuationLikely returns true if the last meaningful word indicates the
// speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
	// ordering calls trail off on these while the caller reads the menu
	"a": {}, "an": {}, "the": {}, "some": {},
}

// sendLoop writes queued frames in order.
func (s *AssemblyAIService) sendLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendLoop: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case f := <-s.outbound:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			s.wmu.Lock()
			err := conn.WriteMessage(f.kind, f.data)
			s.wmu.Unlock()
			if err != nil {
				log.Printf("Error sending audio data: %v", err)
				return
			}
		}
	}
}

// OneShot transcribes whole recordings, one streaming session per call.
type OneShot struct {
	APIKey string
	Opts   Options
	// Wait bounds how long to wait for the final transcript.
	Wait time.Duration
}

// chunkBytes is 50ms of 8kHz μ-law; the server rejects larger frames.
const chunkBytes = 400

// Transcribe streams audio and returns the finalized text. Silence yields "".
func (o OneShot) Transcribe(ctx context.Context, audio []byte) (string, error) {
	opts := o.Opts
	opts.FinalizeOnEndOfTurn = true
	s := NewAssemblyAIService(o.APIKey, opts)
	if err := s.Connect(); err != nil {
		return "", err
	}
	for off := 0; off < len(audio); off += chunkBytes {
		end := off + chunkBytes
		if end > len(audio) {
			end = len(audio)
		}
		if err := s.SendAudio(audio[off:end]); err != nil {
			_ = s.Close()
			return "", err
		}
	}
	if err := s.ForceEndpoint(); err != nil {
		_ = s.Close()
		return "", err
	}

	wait := o.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var parts []string
	select {
	case t, ok := <-s.Finalize():
		if ok {
			parts = append(parts, t)
		}
	case <-timer.C:
	case <-ctx.Done():
		_ = s.Close()
		return "", ctx.Err()
	}
	_ = s.Close()
	for t := range s.Finalize() {
		parts = append(parts, t)
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}
