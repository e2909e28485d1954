package telephony

import (
	"context"
	"encoding/base64"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/voice-order/internal/orchestrator"
	"github.com/chadiek/voice-order/internal/voice"
)

// streamMessage is an inbound Twilio Media Streams event.
type streamMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Start     *struct {
		CallSid          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Track   string `json:"track"`
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

type outboundMedia struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Name string `json:"name"`
}

type outboundMessage struct {
	Event     string         `json:"event"`
	StreamSid string         `json:"streamSid"`
	Media     *outboundMedia `json:"media,omitempty"`
	Mark      *outboundMark  `json:"mark,omitempty"`
}

// Media serves Twilio Media Streams: inbound μ-law goes to a voice.Call and
// its replies are written back on the same socket.
type Media struct {
	calls          Calls
	newTranscriber func() voice.Transcriber
	speaker        voice.Speaker
	barge          voice.Interrupter
	live           *LiveCalls
	supportNumber  string
	upgrader       websocket.Upgrader
}

// NewMedia builds the media stream handler. live may be nil, in which case
// escalations end the call instead of dialing support.
func NewMedia(calls Calls, newTranscriber func() voice.Transcriber, speaker voice.Speaker, barge voice.Interrupter, live *LiveCalls, supportNumber string) *Media {
	return &Media{
		calls:          calls,
		newTranscriber: newTranscriber,
		speaker:        speaker,
		barge:          barge,
		live:           live,
		supportNumber:  supportNumber,
	}
}

// mediaSink writes synthesized audio to Twilio as media events.
type mediaSink struct {
	conn      *websocket.Conn
	wmu       *sync.Mutex
	streamSid string
}

func (s *mediaSink) send(m outboundMessage) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteJSON(m); err != nil {
		log.Printf("stream %s: write %s: %v", s.streamSid, m.Event, err)
	}
}

func (s *mediaSink) Write(audio []byte) {
	s.send(outboundMessage{Event: "media", StreamSid: s.streamSid, Media: &outboundMedia{Payload: base64.StdEncoding.EncodeToString(audio)}})
}

// Flush marks the end of a reply so Twilio reports when playback finished.
func (s *mediaSink) Flush() {
	s.send(outboundMessage{Event: "mark", StreamSid: s.streamSid, Mark: &outboundMark{Name: "reply"}})
}

// Reset drops audio Twilio has buffered but not yet played.
func (s *mediaSink) Reset() {
	s.send(outboundMessage{Event: "clear", StreamSid: s.streamSid})
}

func (m *Media) serve(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("media upgrade failed: %v", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wmu     sync.Mutex
		call    *voice.Call
		stop    func()
		callSid string
	)
	defer func() {
		if stop != nil {
			stop()
		}
		if callSid != "" {
			if err := m.calls.EndCall(context.Background(), callSid); err != nil {
				log.Printf("call %s: end failed: %v", callSid, err)
			}
		}
	}()

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("media read ended: %v", err)
			}
			return nil
		}
		switch msg.Event {
		case "connected":
		case "start":
			if msg.Start == nil || call != nil {
				continue
			}
			callSid = msg.Start.CallSid
			s, greeting, err := m.calls.StartCall(ctx, callSid, msg.Start.CustomParameters["from"])
			if err != nil {
				log.Printf("call %s: start failed: %v", callSid, err)
				return nil
			}
			sink := &mediaSink{conn: conn, wmu: &wmu, streamSid: msg.StreamSid}
			call = voice.NewCall(s.ID, voice.Deps{
				Transcriber: m.newTranscriber(),
				Turns:       m.calls,
				Speaker:     m.speaker,
				Sink:        sink,
				Barge:       m.barge,
				OnEnd:       func(r orchestrator.Reply) { m.finish(callSid, r, conn, &wmu) },
			})
			stop, err = call.Start(ctx)
			if err != nil {
				log.Printf("[%s] transcriber connect failed: %v", s.ID, err)
				return nil
			}
			log.Printf("[%s] media stream %s started for call %s", s.ID, msg.StreamSid, callSid)
			go call.Say(ctx, greeting.Text)
		case "media":
			if call == nil || msg.Media == nil || (msg.Media.Track != "" && msg.Media.Track != "inbound") {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				log.Printf("call %s: bad media payload: %v", callSid, err)
				continue
			}
			call.Feed(audio)
		case "stop":
			log.Printf("call %s: media stream stopped", callSid)
			return nil
		}
	}
}

// finish runs after the final reply was spoken. Escalations are redirected to
// the support line; otherwise closing the socket lets the call hang up.
func (m *Media) finish(callSid string, r orchestrator.Reply, conn *websocket.Conn, wmu *sync.Mutex) {
	if r.Escalate && m.live != nil && m.supportNumber != "" {
		doc, err := twiml.Voice([]twiml.Element{&twiml.VoiceDial{Number: m.supportNumber}})
		if err == nil {
			err = m.live.Redirect(callSid, doc)
		}
		if err != nil {
			log.Printf("call %s: escalation redirect failed: %v", callSid, err)
		}
	}
	wmu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
	wmu.Unlock()
	_ = conn.Close()
}
