package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/tools"
)

// Decision is an agent's answer to one utterance.
type Decision struct {
	Reply string
	// Next names the agent to hand the call to, or is empty to stay.
	Next    session.AgentName
	EndCall bool
}

// Agent is a conversational policy for one phase of the order.
//
// DecideReply and Introduce may mutate s through the toolbox; the caller owns
// s and decides whether to commit it. ShouldTransfer must not mutate s.
type Agent interface {
	Name() session.AgentName
	ComposePrompt(s *session.Session) string
	// Introduce produces the first words after the agent takes over.
	Introduce(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error)
	DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error)
	ShouldTransfer(s *session.Session) session.AgentName
}

// Responder answers free-form questions. It is optional; agents fall back to
// a fixed line without it.
type Responder interface {
	Respond(ctx context.Context, system, prompt string) (string, error)
}

// Set holds one instance of every automated agent.
type Set struct {
	agents map[session.AgentName]Agent
}

// NewSet builds the standard agents. responder may be nil.
func NewSet(responder Responder) *Set {
	all := []Agent{
		&Ordering{},
		&Address{},
		&Payment{},
		&Restaurant{},
		&Driver{},
		&Tracking{},
		&Support{responder: responder},
		&PostDelivery{responder: responder},
	}
	s := &Set{agents: make(map[session.AgentName]Agent, len(all))}
	for _, a := range all {
		s.agents[a.Name()] = a
	}
	return s
}

// Get returns the agent for name. The human sentinel has no agent.
func (s *Set) Get(name session.AgentName) (Agent, error) {
	a, ok := s.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", session.ErrUnknownAgent, name)
	}
	return a, nil
}

// Handoff is the line spoken when the call moves to another agent.
func Handoff(to session.AgentName) string {
	switch to {
	case session.AgentSupport:
		return "Let me get you over to our support team."
	case session.AgentTracking:
		return "Let me check on your delivery."
	case session.AgentOrdering:
		return "Sure, let's go back to your order."
	case session.AgentHuman:
		return "I'm connecting you with a member of our team now. Please hold."
	}
	return ""
}

// Summary condenses the last exchanges for a transfer record.
func Summary(s *session.Session) string {
	var lines []string
	for i := len(s.Turns) - 1; i >= 0 && len(lines) < 4; i-- {
		t := s.Turns[i]
		if t.Role != session.RoleUser && t.Role != session.RoleAssistant {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Text))
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// composePrompt appends the live order context to a role prompt.
func composePrompt(role string, s *session.Session) string {
	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\nKeep answers short; they are spoken on a phone call. Never invent menu items or prices.")
	var ctx []string
	if s.CustomerID != "" {
		ctx = append(ctx, "Customer: "+s.CustomerID)
	}
	if n := len(s.Items); n > 0 {
		names := make([]string, n)
		for i, li := range s.Items {
			names[i] = fmt.Sprintf("%d x %s", li.Quantity, li.Name)
		}
		ctx = append(ctx, "Current order: "+strings.Join(names, ", "))
		ctx = append(ctx, "Order total: "+order.Money(s.TotalAmount))
	}
	if s.Address.Normalized != "" {
		ctx = append(ctx, "Delivery address: "+s.Address.Normalized)
	}
	if s.Driver != nil {
		ctx = append(ctx, "Driver: "+s.Driver.Name)
	}
	ctx = append(ctx, "Order stage: "+string(s.Stage))
	b.WriteString("\n\n")
	b.WriteString(strings.Join(ctx, "\n"))
	return b.String()
}

func stay(reply string) (Decision, error) { return Decision{Reply: reply}, nil }
