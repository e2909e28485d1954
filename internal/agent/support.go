package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/stage"
	"github.com/chadiek/voice-order/internal/tools"
)

// HighValueRefund is the order total, in cents, above which refund requests
// go to a person.
const HighValueRefund = 5000

var supportHumanKeywords = []string{
	"human agent", "real person", "speak to manager", "supervisor",
	"actual human", "not a bot", "get me a person",
}

var complaintWords = []string{
	"complaint", "cold", "wrong", "missing", "rude", "late", "spilled", "problem", "issue", "terrible",
}

const respondTimeout = 8 * time.Second

// Support handles cancellations, refunds and complaints, and escalates to a
// person when asked.
type Support struct {
	responder Responder
}

func (*Support) Name() session.AgentName { return session.AgentSupport }

func (*Support) ComposePrompt(s *session.Session) string {
	return composePrompt("You are a customer support agent for a food delivery service. Be empathetic, apologize for mistakes, "+
		"and explain what you can do: cancel an unpaid order, refund a paid one, or record a complaint.", s)
}

func (*Support) ShouldTransfer(s *session.Session) session.AgentName {
	u := s.LastUserUtterance()
	if firstMatch(u, []rule{{to: session.AgentHuman, keywords: supportHumanKeywords}}) != "" {
		return session.AgentHuman
	}
	if s.TotalAmount > HighValueRefund && strings.Contains(u, "refund") {
		return session.AgentHuman
	}
	return ""
}

func (*Support) Introduce(_ context.Context, s *session.Session, _ *tools.Toolbox) (Decision, error) {
	return stay("I'm sorry about the trouble. I can cancel an order, refund a payment or take a complaint. What happened?")
}

func (sp *Support) DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error) {
	u := strings.ToLower(utterance)
	switch {
	case strings.Contains(u, "cancel"):
		return sp.cancel(ctx, s, tb)
	case strings.Contains(u, "refund") || strings.Contains(u, "money back"):
		return sp.refund(ctx, s, tb)
	case containsAny(u, complaintWords):
		ticket, err := tools.Exec[string](ctx, tb, tools.LogComplaintArgs{Text: utterance})
		if err != nil {
			return Decision{}, err
		}
		return stay(fmt.Sprintf("I'm sorry about that. I've logged your complaint under reference %s. Is there anything else?", ticketRef(ticket)))
	case IsGoodbye(u):
		return Decision{Reply: "Thanks for calling, goodbye.", EndCall: true}, nil
	}
	return respond(ctx, sp.responder, sp.ComposePrompt(s), s, utterance,
		"I can cancel an order, refund a payment or take a complaint. What would you like to do?")
}

func (sp *Support) cancel(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	_, err := tools.Exec[stage.Stage](ctx, tb, tools.CancelOrderArgs{Reason: "caller request"})
	switch {
	case errors.Is(err, tools.ErrNotCancellable):
		if s.PaymentRef != "" && s.Stage != stage.Initial {
			return stay("Your order is already on its way through the kitchen, so I can't cancel it. I can refund it instead if you like.")
		}
		return stay("There's no open order to cancel.")
	case err != nil:
		return Decision{}, err
	}
	return Decision{Reply: "Your order has been cancelled and you won't be charged. Thanks for calling, goodbye.", EndCall: true}, nil
}

func (sp *Support) refund(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	r, err := tools.Exec[tools.RefundResult](ctx, tb, tools.ProcessRefundArgs{})
	switch {
	case errors.Is(err, tools.ErrNoPayment):
		return stay("I don't see a completed payment on this order, so there's nothing to refund.")
	case errors.Is(err, tools.ErrPaymentUnavailable):
		log.Printf("[%s] refund failed: %v", s.ID, err)
		return stay("I couldn't reach the payment system just now. Please ask again in a moment.")
	case err != nil:
		return Decision{}, err
	}
	reply := "Your refund is on its way."
	if r.Amount > 0 {
		reply = fmt.Sprintf("I've refunded %s to your card.", order.Money(r.Amount))
	}
	if r.Simulated {
		reply += " This was a test payment, so nothing was charged."
	}
	return stay(reply + " Is there anything else?")
}

var postDeliveryRules = []rule{
	{to: session.AgentSupport, keywords: []string{
		"wrong order", "missing items", "food is cold", "not what i ordered",
		"driver was rude", "never delivered", "partial order", "spilled",
	}},
}

// PostDelivery collects a rating and closes the order.
type PostDelivery struct {
	responder Responder
}

func (*PostDelivery) Name() session.AgentName { return session.AgentPostDelivery }

func (*PostDelivery) ComposePrompt(s *session.Session) string {
	return composePrompt("You follow up after delivery: ask how the meal was, collect a rating from one to five, and thank the caller.", s)
}

func (*PostDelivery) ShouldTransfer(s *session.Session) session.AgentName {
	return firstMatch(s.LastUserUtterance(), postDeliveryRules)
}

func (*PostDelivery) Introduce(context.Context, *session.Session, *tools.Toolbox) (Decision, error) {
	return stay("How would you rate your order, from one to five?")
}

func (p *PostDelivery) DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error) {
	if s.Stage == stage.Completed {
		if IsGoodbye(utterance) || IsDecline(utterance) {
			return Decision{Reply: "Thanks for ordering with us. Goodbye!", EndCall: true}, nil
		}
		return respond(ctx, p.responder, p.ComposePrompt(s), s, utterance, "Is there anything else I can help you with?")
	}
	rating := parseRating(utterance)
	if rating == 0 {
		return respond(ctx, p.responder, p.ComposePrompt(s), s, utterance, "Please rate your order from one to five.")
	}
	if _, err := tools.Exec[int](ctx, tb, tools.RecordFeedbackArgs{Rating: rating}); err != nil {
		return Decision{}, err
	}
	if _, err := tools.Exec[stage.Stage](ctx, tb, tools.CompleteOrderArgs{}); err != nil {
		return Decision{}, err
	}
	if rating <= 2 {
		return stay(fmt.Sprintf("Thanks for the %d star rating. I'm sorry it wasn't better. Anything else I can help with?", rating))
	}
	return stay(fmt.Sprintf("Thanks for the %d star rating! Anything else I can help with?", rating))
}

// respond asks the responder for a free-form answer, falling back to line.
func respond(ctx context.Context, r Responder, system string, s *session.Session, utterance, fallback string) (Decision, error) {
	if r == nil {
		return stay(fallback)
	}
	rctx, cancel := context.WithTimeout(ctx, respondTimeout)
	defer cancel()
	text, err := r.Respond(rctx, system, utterance)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			log.Printf("[%s] responder error: %v", s.ID, err)
		}
		return stay(fallback)
	}
	return stay(strings.TrimSpace(text))
}

func containsAny(u string, words []string) bool {
	for _, w := range words {
		if strings.Contains(u, w) {
			return true
		}
	}
	return false
}

// ticketRef is the short spoken form of a ticket id.
func ticketRef(ticket string) string {
	t := strings.TrimPrefix(ticket, "tkt_")
	if len(t) > 6 {
		t = t[len(t)-6:]
	}
	return spell(strings.ToUpper(t))
}
