package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDetectVoiceActivity_MulawFrames(t *testing.T) {
	s := NewAssemblyAIService("test", PhoneLine())
	if s.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("no voice expected before any audio")
	}
	// 10ms of digital silence
	s.detectVoiceActivity(bytes.Repeat([]byte{0xff}, 80))
	if s.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("silence must not count as voice")
	}
	s.detectVoiceActivity(bytes.Repeat([]byte{0x00}, 80))
	if !s.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("expected loud frame to count as voice")
	}
}

func TestDetectVoiceActivity_ShortFrameIgnored(t *testing.T) {
	s := NewAssemblyAIService("test", PhoneLine())
	s.detectVoiceActivity([]byte{0x00, 0x00})
	if s.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("frames under 10ms are ignored")
	}
}

func TestMulawSample(t *testing.T) {
	cases := map[byte]int16{0xff: 0, 0x7f: 0, 0x00: -32124, 0x80: 32124}
	for in, want := range cases {
		if got := mulawSample(in); got != want {
			t.Fatalf("mulawSample(%#x) = %d, want %d", in, got, want)
		}
	}
}

func TestHelpers_LastWordAndContinuation(t *testing.T) {
	if lastWord("") != "" {
		t.Fatalf("lastWord empty mismatch")
	}
	if lastWord("hi there!") != "there" {
		t.Fatalf("lastWord basic mismatch")
	}
	if !isContinuationLikely("two pizzas and") {
		t.Fatalf("expected continuation likely when last word is 'and'")
	}
	if isContinuationLikely("that's all.") {
		t.Fatalf("did not expect continuation likely")
	}
}

func TestCommitDelta(t *testing.T) {
	s := NewAssemblyAIService("test", PhoneLine())
	s.latestFullTranscript = "one margherita"
	if got := s.commitDelta(); got != "one margherita" {
		t.Fatalf("first delta = %q", got)
	}
	s.latestFullTranscript = "one margherita and a coke"
	if got := s.commitDelta(); got != "and a coke" {
		t.Fatalf("second delta = %q", got)
	}
	if got := s.commitDelta(); got != "" {
		t.Fatalf("repeat delta = %q", got)
	}
}

// fakeStreaming answers ForceEndpoint with a finished turn.
func fakeStreaming(t *testing.T, transcript string, audioFrames *int32) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("sample_rate") != "8000" || q.Get("encoding") != "pcm_mulaw" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(BeginMessage{Type: "Begin", ID: "sess", ExpiresAt: time.Now().Add(time.Hour).Unix()})
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				atomic.AddInt32(audioFrames, 1)
				continue
			}
			var m struct{ Type string }
			_ = json.Unmarshal(msg, &m)
			switch m.Type {
			case "ForceEndpoint":
				if transcript != "" {
					_ = conn.WriteJSON(TurnMessage{Type: "Turn", Transcript: transcript, EndOfTurn: true})
				}
			case "Terminate":
				_ = conn.WriteJSON(TerminationMessage{Type: "Termination"})
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOneShot_Transcribe(t *testing.T) {
	var frames int32
	srv := fakeStreaming(t, "one margherita please", &frames)
	defer srv.Close()

	opts := PhoneLine()
	opts.URL = wsURL(srv)
	o := OneShot{APIKey: "key", Opts: opts, Wait: 2 * time.Second}
	got, err := o.Transcribe(context.Background(), bytes.Repeat([]byte{0xff}, 1000))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "one margherita please" {
		t.Fatalf("got %q", got)
	}
	if atomic.LoadInt32(&frames) != 3 {
		t.Fatalf("expected 3 audio frames, got %d", frames)
	}
}

func TestOneShot_SilenceTimesOut(t *testing.T) {
	var frames int32
	srv := fakeStreaming(t, "", &frames)
	defer srv.Close()

	opts := PhoneLine()
	opts.URL = wsURL(srv)
	o := OneShot{APIKey: "key", Opts: opts, Wait: 50 * time.Millisecond}
	got, err := o.Transcribe(context.Background(), []byte{0xff})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestConnect_RequiresKey(t *testing.T) {
	s := NewAssemblyAIService("", PhoneLine())
	if err := s.Connect(); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := s.SendAudio([]byte{0xff}); err == nil {
		t.Fatalf("expected error when not connected")
	}
}
