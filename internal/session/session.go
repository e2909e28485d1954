package session

import (
	"errors"
	"strings"
	"time"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/stage"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrCapacityExceeded = errors.New("session store at capacity")
	ErrCallInUse        = errors.New("call already has a live session")
	ErrUnknownAgent     = errors.New("unknown agent")
)

// AgentName identifies the agent that owns the conversation.
type AgentName string

const (
	AgentOrdering     AgentName = "ordering"
	AgentAddress      AgentName = "address"
	AgentPayment      AgentName = "payment"
	AgentRestaurant   AgentName = "restaurant"
	AgentDriver       AgentName = "driver"
	AgentTracking     AgentName = "tracking"
	AgentSupport      AgentName = "support"
	AgentPostDelivery AgentName = "post_delivery"
	// AgentHuman is the escalation exit; no automated agent answers for it.
	AgentHuman AgentName = "human_agent"
)

// Agents lists the automated variants in flow order.
var Agents = []AgentName{
	AgentOrdering, AgentAddress, AgentPayment, AgentRestaurant,
	AgentDriver, AgentTracking, AgentSupport, AgentPostDelivery,
}

// Known reports whether a is an automated variant or the human sentinel.
func (a AgentName) Known() bool {
	if a == AgentHuman {
		return true
	}
	for _, v := range Agents {
		if v == a {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Mode string

const (
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
)

// Address is the delivery address as heard and as verified.
type Address struct {
	Raw        string  `json:"raw,omitempty"`
	Normalized string  `json:"normalized,omitempty"`
	Verified   bool    `json:"verified"`
	Lat        float64 `json:"lat,omitempty"`
	Lon        float64 `json:"lon,omitempty"`
}

// Set reports whether a usable delivery address was captured.
func (a Address) Set() bool { return a.Verified && a.Normalized != "" }

// Driver is the courier assigned to the order.
type Driver struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Vehicle string  `json:"vehicle"`
	Rating  float64 `json:"rating"`
	Phone   string  `json:"phone"`
}

// TransferRecord logs one handoff between agents. Records are append-only.
type TransferRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	From      AgentName `json:"from"`
	To        AgentName `json:"to"`
	Summary   string    `json:"summary"`
	At        time.Time `json:"at"`
}

// Session is the conversational state of one phone call.
type Session struct {
	ID          string           `json:"id"`
	CallID      string           `json:"call_id"`
	CallerID    string           `json:"caller_id"`
	ActiveAgent AgentName        `json:"active_agent"`
	Turns       []Turn           `json:"turns"`
	Items       []order.LineItem `json:"items"`
	// TotalAmount caches order.Calculate over Items; zero for an empty order.
	TotalAmount int64       `json:"total_amount"`
	Address     Address     `json:"address"`
	PaymentRef  string      `json:"payment_ref,omitempty"`
	Simulated   bool        `json:"payment_simulated,omitempty"`
	RefundRef   string      `json:"refund_ref,omitempty"`
	Driver      *Driver     `json:"driver,omitempty"`
	Stage       stage.Stage `json:"stage"`

	Interrupted          bool `json:"interrupted"`
	TTSActive            bool `json:"tts_active"`
	Mode                 Mode `json:"mode"`
	AwaitingConfirmation bool `json:"awaiting_confirmation"`

	CustomerID       string   `json:"customer_id,omitempty"`
	OrderID          string   `json:"order_id,omitempty"`
	ConfirmationCode string   `json:"confirmation_code,omitempty"`
	PendingCategory  string   `json:"pending_category,omitempty"`
	Rating           int      `json:"rating,omitempty"`
	Complaints       []string `json:"complaints,omitempty"`
	Ended            bool     `json:"ended,omitempty"`

	Transfers    []TransferRecord `json:"transfers,omitempty"`
	LastActivity time.Time        `json:"last_activity"`
	CreatedAt    time.Time        `json:"created_at"`
}

func newSession(id, callID, callerID string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CallID:       callID,
		CallerID:     callerID,
		ActiveAgent:  AgentOrdering,
		Stage:        stage.Initial,
		Mode:         ModeListening,
		LastActivity: now,
		CreatedAt:    now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	c.Complaints = append([]string(nil), s.Complaints...)
	c.Transfers = append([]TransferRecord(nil), s.Transfers...)
	if s.Items != nil {
		c.Items = make([]order.LineItem, len(s.Items))
		for i, li := range s.Items {
			if li.Customizations != nil {
				m := make(map[string]string, len(li.Customizations))
				for k, v := range li.Customizations {
					m[k] = v
				}
				li.Customizations = m
			}
			c.Items[i] = li
		}
	}
	if s.Driver != nil {
		d := *s.Driver
		c.Driver = &d
	}
	return &c
}

// Append adds a turn to the history.
func (s *Session) Append(role Role, text string, at time.Time) {
	s.Turns = append(s.Turns, Turn{Role: role, Text: text, At: at})
}

// LastUserUtterance returns the most recent caller turn, lower-cased.
func (s *Session) LastUserUtterance() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return strings.ToLower(s.Turns[i].Text)
		}
	}
	return ""
}

// Recalculate refreshes the TotalAmount cache from the line items.
func (s *Session) Recalculate() {
	t, err := order.Calculate(s.Items)
	if err != nil {
		s.TotalAmount = 0
		return
	}
	s.TotalAmount = t.Total
}

// Totals prices the current order.
func (s *Session) Totals() (order.Totals, error) { return order.Calculate(s.Items) }
