package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/stage"
	"github.com/chadiek/voice-order/internal/tools"
)

// Payment asks for confirmation and places the order.
type Payment struct{}

func (*Payment) Name() session.AgentName { return session.AgentPayment }

func (*Payment) ComposePrompt(s *session.Session) string {
	return composePrompt("You confirm the order total with the caller and take payment. Never place an order without a clear yes.", s)
}

// ShouldTransfer never fires; cancellation is handled as a reply.
func (*Payment) ShouldTransfer(*session.Session) session.AgentName { return "" }

func (*Payment) Introduce(_ context.Context, s *session.Session, _ *tools.Toolbox) (Decision, error) {
	return stay("Shall I place the order? Say yes to confirm, or cancel to stop.")
}

func (p *Payment) DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error) {
	if s.Stage == stage.Cancelled {
		return Decision{Reply: "Your order was cancelled. Thanks for calling, goodbye.", EndCall: true}, nil
	}
	if s.OrderID != "" {
		return Decision{Next: session.AgentRestaurant}, nil
	}

	if digits := phoneDigits(utterance); digits != "" && s.CustomerID == "" {
		if _, err := tools.Exec[string](ctx, tb, tools.IdentifyCustomerArgs{Phone: digits}); err != nil {
			return Decision{}, err
		}
		return stay("Thanks, I have your number. Shall I place the order?")
	}

	switch {
	case IsConfirmation(utterance):
		return p.place(ctx, s, tb)
	case IsCancel(utterance):
		return p.cancel(ctx, s, tb)
	case IsDecline(utterance):
		return stay("No problem, I'll hold the order. Say yes when you're ready, or cancel to stop.")
	}
	return stay(fmt.Sprintf("Your total is %s. Say yes to place the order, or cancel to stop.", order.Money(s.TotalAmount)))
}

func (p *Payment) cancel(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	if _, err := tools.Exec[stage.Stage](ctx, tb, tools.CancelOrderArgs{Reason: "declined at payment"}); err != nil {
		if errors.Is(err, tools.ErrNotCancellable) {
			return stay("That order can't be cancelled anymore.")
		}
		return Decision{}, err
	}
	return Decision{Reply: "No problem, I've cancelled your order. Thanks for calling, goodbye.", EndCall: true}, nil
}

func (p *Payment) place(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	if s.CustomerID == "" {
		if _, err := tools.Exec[string](ctx, tb, tools.IdentifyCustomerArgs{}); errors.Is(err, tools.ErrCustomerUnidentified) {
			return stay("I need a phone number for the order. What's the best number to reach you?")
		}
	}
	placed, err := tools.Exec[tools.PlacedOrder](ctx, tb, tools.PlaceOrderArgs{PaymentMethod: "card"})
	switch {
	case errors.Is(err, tools.ErrPaymentUnavailable):
		log.Printf("[%s] payment failed: %v", s.ID, err)
		return stay("I'm sorry, the payment system is unavailable right now. Say yes to try again.")
	case errors.Is(err, tools.ErrCustomerUnidentified):
		return stay("I need a phone number for the order. What's the best number to reach you?")
	case errors.Is(err, tools.ErrNoAddress):
		return Decision{Reply: "I still need your delivery address.", Next: session.AgentAddress}, nil
	case errors.Is(err, tools.ErrEmptyOrder):
		return Decision{Reply: "Your order is empty.", Next: session.AgentOrdering}, nil
	case err != nil:
		return Decision{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your order is placed! Your confirmation code is %s.", spell(placed.ConfirmationCode))
	if placed.Simulated {
		b.WriteString(" This was a test payment, so no card was charged.")
	}
	sms := fmt.Sprintf("Order %s confirmed. Total %s.", placed.ConfirmationCode, order.Money(placed.Totals.Total))
	if _, err := tools.Exec[bool](ctx, tb, tools.SendSMSArgs{Body: sms}); err != nil && !errors.Is(err, tools.ErrUnknownTool) {
		log.Printf("[%s] confirmation sms failed: %v", s.ID, err)
	}
	return Decision{Reply: b.String(), Next: session.AgentRestaurant}, nil
}

// spell separates characters so a code is read out one by one.
func spell(code string) string {
	return strings.Join(strings.Split(code, ""), " ")
}
