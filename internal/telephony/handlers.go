package telephony

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/voice-order/internal/orchestrator"
	"github.com/chadiek/voice-order/internal/session"
)

// Calls is the turn processor surface the webhooks drive;
// *orchestrator.Orchestrator satisfies it.
type Calls interface {
	StartCall(ctx context.Context, callID, callerID string) (*session.Session, orchestrator.Reply, error)
	HandleTurn(ctx context.Context, sessionID, utterance string) orchestrator.Reply
	EndCall(ctx context.Context, callID string) error
	CallSession(ctx context.Context, callID string) (*session.Session, error)
}

// Options configure the webhook surface.
type Options struct {
	// PublicBaseURL is the externally reachable origin, e.g. https://orders.example.com.
	PublicBaseURL string
	// SupportNumber receives escalated calls; empty hangs up instead.
	SupportNumber string
}

// Handlers serves the Twilio Voice webhooks.
type Handlers struct {
	calls Calls
	opts  Options
	media *Media
}

func NewHandlers(calls Calls, opts Options, media *Media) Handlers {
	return Handlers{calls: calls, opts: opts, media: media}
}

// Register mounts the /twilio routes behind the signature middleware.
func (h Handlers) Register(e *echo.Echo, authToken string) {
	g := e.Group("/twilio", TwilioAuth(authToken, h.opts.PublicBaseURL))
	g.POST("/voice", h.voice)
	g.POST("/speech", h.speech)
	g.POST("/status", h.status)
	if h.media != nil {
		g.GET("/media", h.media.serve)
	}
}

func twilioParams(c echo.Context) (map[string]string, bool) {
	params, ok := c.Get(paramsKey).(map[string]string)
	return params, ok
}

func writeTwiML(c echo.Context, body string, err error) error {
	if err != nil {
		log.Printf("Error building TwiML: %v", err)
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, body)
}

func (h Handlers) voice(c echo.Context) error {
	params, ok := twilioParams(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	callSid, from := params["CallSid"], params["From"]
	if callSid == "" {
		return c.String(http.StatusBadRequest, "missing CallSid")
	}
	log.Printf("call %s from %s", callSid, from)

	if c.QueryParam("mode") == "stream" && h.media != nil && h.opts.PublicBaseURL != "" {
		wsURL := websocketURL(absoluteURL(c.Request(), h.opts.PublicBaseURL, "/twilio/media"))
		body, err := streamTwiML(wsURL, from)
		return writeTwiML(c, body, err)
	}

	_, reply, err := h.calls.StartCall(c.Request().Context(), callSid, from)
	if err != nil {
		log.Printf("call %s: start failed: %v", callSid, err)
	}
	body, err := replyTwiML(reply, "/twilio/speech", h.opts.SupportNumber)
	return writeTwiML(c, body, err)
}

func (h Handlers) speech(c echo.Context) error {
	params, ok := twilioParams(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	ctx := c.Request().Context()
	callSid := params["CallSid"]

	s, err := h.calls.CallSession(ctx, callSid)
	if err != nil {
		// The session expired or was never created; start over rather than drop the caller.
		log.Printf("call %s: no live session (%v), restarting", callSid, err)
		_, reply, err := h.calls.StartCall(ctx, callSid, params["From"])
		if err != nil {
			log.Printf("call %s: restart failed: %v", callSid, err)
		}
		body, err := replyTwiML(reply, "/twilio/speech", h.opts.SupportNumber)
		return writeTwiML(c, body, err)
	}

	reply := h.calls.HandleTurn(ctx, s.ID, params["SpeechResult"])
	body, err := replyTwiML(reply, "/twilio/speech", h.opts.SupportNumber)
	return writeTwiML(c, body, err)
}

// finalStatuses are the CallStatus values after which a call is gone.
var finalStatuses = map[string]bool{
	"completed": true, "busy": true, "failed": true, "no-answer": true, "canceled": true,
}

func (h Handlers) status(c echo.Context) error {
	params, ok := twilioParams(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	callSid, status := params["CallSid"], params["CallStatus"]
	log.Printf("call %s status %s", callSid, status)
	if finalStatuses[status] {
		if err := h.calls.EndCall(c.Request().Context(), callSid); err != nil {
			log.Printf("call %s: end failed: %v", callSid, err)
			return c.String(http.StatusInternalServerError, "end failed")
		}
	}
	return c.String(http.StatusOK, "OK")
}
