package telephony

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// LiveCalls changes in-progress calls through the Twilio REST API.
type LiveCalls struct {
	client *twilio.RestClient
}

func NewLiveCalls(accountSID, authToken string) *LiveCalls {
	return &LiveCalls{client: twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})}
}

// Redirect replaces the TwiML a live call is executing.
func (l *LiveCalls) Redirect(callSid, doc string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := l.client.Api.UpdateCall(callSid, params); err != nil {
		return fmt.Errorf("update call %s: %w", callSid, err)
	}
	return nil
}
