package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/tools"
)

var addressRules = []rule{
	{to: session.AgentSupport, keywords: []string{"cancel my order", "complaint", "human agent"}},
	{to: session.AgentOrdering, keywords: []string{"change my order", "add another item", "add something else"}},
}

// Address captures and verifies the delivery address, then opens the payment.
type Address struct{}

func (*Address) Name() session.AgentName { return session.AgentAddress }

func (*Address) ComposePrompt(s *session.Session) string {
	return composePrompt("You collect and verify the caller's delivery address: street number, street name and city.", s)
}

func (*Address) ShouldTransfer(s *session.Session) session.AgentName {
	return firstMatch(s.LastUserUtterance(), addressRules)
}

func (*Address) Introduce(_ context.Context, s *session.Session, _ *tools.Toolbox) (Decision, error) {
	return stay("What address should we deliver to?")
}

func (a *Address) DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error) {
	// An address is on file but the payment could not be opened; retry it.
	if s.Address.Set() && s.PaymentRef == "" && !hasDigit(utterance) {
		return a.openPayment(ctx, s, tb)
	}

	res, err := tools.Exec[tools.AddressResult](ctx, tb, tools.VerifyAddressArgs{Text: utterance})
	if errors.Is(err, tools.ErrAddressUnverifiable) {
		return stay("I couldn't verify that address. Could you tell me the street number, street name and city?")
	}
	if err != nil {
		return Decision{}, err
	}
	if s.CustomerID == "" {
		if _, err := tools.Exec[string](ctx, tb, tools.IdentifyCustomerArgs{}); err != nil {
			log.Printf("[%s] caller not identified from caller id: %v", s.ID, err)
		}
	}
	d, err := a.openPayment(ctx, s, tb)
	if err != nil {
		return Decision{}, err
	}
	d.Reply = fmt.Sprintf("Got it, delivering to %s. %s", res.Normalized, d.Reply)
	return d, nil
}

func (a *Address) openPayment(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	p, err := tools.Exec[tools.PaymentResult](ctx, tb, tools.CreatePaymentIntentArgs{})
	switch {
	case errors.Is(err, tools.ErrPaymentUnavailable):
		log.Printf("[%s] payment intent failed: %v", s.ID, err)
		return stay("Our payment system is unavailable right now. Say try again in a moment and I'll retry.")
	case errors.Is(err, tools.ErrEmptyOrder):
		return Decision{Reply: "Your order is empty.", Next: session.AgentOrdering}, nil
	case err != nil:
		return Decision{}, err
	}
	return Decision{
		Reply: fmt.Sprintf("Your total comes to %s including delivery, service fee and tax.", order.Money(p.Amount)),
		Next:  session.AgentPayment,
	}, nil
}
