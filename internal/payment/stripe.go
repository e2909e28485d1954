package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// Stripe talks to the Stripe PaymentIntents and Refunds APIs.
type Stripe struct {
	sc            *stripe.Client
	paymentMethod string
}

// NewStripe builds a gateway. paymentMethod is attached on confirmation
// (card capture happens before the call reaches us); it defaults to the
// Stripe test card.
func NewStripe(secretKey, paymentMethod string, opts ...stripe.ClientOption) *Stripe {
	if paymentMethod == "" {
		paymentMethod = "pm_card_visa"
	}
	return &Stripe{sc: stripe.NewClient(secretKey, opts...), paymentMethod: paymentMethod}
}

func (s *Stripe) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	if amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if sid := metadata["session_id"]; sid != "" {
		params.SetIdempotencyKey(fmt.Sprintf("intent-%s-%d", sid, amount))
	}
	pi, err := s.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe create intent: %w", err)
	}
	return Intent{Ref: pi.ID, Status: string(pi.Status), Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}

func (s *Stripe) Confirm(ctx context.Context, ref string) (Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{PaymentMethod: stripe.String(s.paymentMethod)}
	pi, err := s.sc.V1PaymentIntents.Confirm(ctx, ref, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe confirm %s: %w", ref, err)
	}
	return Intent{Ref: pi.ID, Status: string(pi.Status), Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}

// Refund returns amount cents, or the full charge when amount is zero.
func (s *Stripe) Refund(ctx context.Context, ref string, amount int64) (Refund, error) {
	params := &stripe.RefundCreateParams{PaymentIntent: stripe.String(ref)}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	r, err := s.sc.V1Refunds.Create(ctx, params)
	if err != nil {
		return Refund{}, fmt.Errorf("stripe refund %s: %w", ref, err)
	}
	return Refund{Ref: r.ID, Status: string(r.Status), Amount: r.Amount}, nil
}
