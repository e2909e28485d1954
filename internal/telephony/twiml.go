package telephony

import (
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/voice-order/internal/orchestrator"
)

// gatherTwiML speaks text and listens for the caller's next utterance. When
// nothing is heard Twilio falls through to the redirect, which posts an empty
// SpeechResult.
func gatherTwiML(text, action string) (string, error) {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		SpeechTimeout: "auto",
		Language:      "en-US",
		InnerElements: []twiml.Element{&twiml.VoiceSay{Message: text}},
	}
	redirect := &twiml.VoiceRedirect{Url: action, Method: "POST"}
	return twiml.Voice([]twiml.Element{gather, redirect})
}

// hangupTwiML speaks text and ends the call.
func hangupTwiML(text string) (string, error) {
	verbs := []twiml.Element{}
	if text != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: text})
	}
	verbs = append(verbs, &twiml.VoiceHangup{})
	return twiml.Voice(verbs)
}

// dialTwiML speaks text and bridges the caller to a person. Without a number
// the call ends.
func dialTwiML(text, number string) (string, error) {
	if number == "" {
		return hangupTwiML(text)
	}
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: text},
		&twiml.VoiceDial{Number: number},
	})
}

// streamTwiML connects the call to the media websocket. The caller id travels
// as a stream parameter; the call hangs up when the socket closes.
func streamTwiML(wsURL, callerID string) (string, error) {
	stream := &twiml.VoiceStream{
		Url:           wsURL,
		InnerElements: []twiml.Element{&twiml.VoiceParameter{Name: "from", Value: callerID}},
	}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	return twiml.Voice([]twiml.Element{connect, &twiml.VoiceHangup{}})
}

// replyTwiML renders a turn reply for the speech-gather path.
func replyTwiML(r orchestrator.Reply, action, supportNumber string) (string, error) {
	switch {
	case r.Escalate:
		return dialTwiML(r.Text, supportNumber)
	case r.EndCall:
		return hangupTwiML(r.Text)
	}
	return gatherTwiML(r.Text, action)
}
