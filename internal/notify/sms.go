package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrNotConfigured = errors.New("sms: twilio credentials or sender number missing")

// Config holds Twilio messaging credentials.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
}

// SMS sends text messages through the Twilio Messages API.
type SMS struct {
	config Config
	client *twilio.RestClient
}

func NewSMS(config Config) *SMS {
	s := &SMS{config: config}
	if config.AccountSID != "" && config.AuthToken != "" {
		s.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: config.AccountSID,
			Password: config.AuthToken,
		})
	} else {
		log.Println("Warning: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - SMS notifications disabled")
	}
	return s
}

// Enabled reports whether messages can be sent.
func (s *SMS) Enabled() bool { return s.client != nil && s.config.From != "" }

// SendSMS delivers body to the E.164 number to.
func (s *SMS) SendSMS(_ context.Context, to, body string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	if to == "" {
		return fmt.Errorf("sms: empty recipient")
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.config.From)
	params.SetBody(body)
	msg, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("sms to %s: %w", to, err)
	}
	if msg.Sid != nil {
		log.Printf("sms queued: sid=%s", *msg.Sid)
	}
	return nil
}
