package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Simulated references start with these prefixes so callers can tell a mock
// charge from a real one without changing the order flow.
const (
	MockIntentPrefix = "pi_mock_"
	MockRefundPrefix = "re_mock_"
)

var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	ErrUnknownIntent = errors.New("unknown payment intent")
)

// Intent is a provider payment intent.
type Intent struct {
	Ref       string
	Status    string
	Amount    int64
	Currency  string
	Simulated bool
}

// Succeeded reports whether the charge went through.
func (i Intent) Succeeded() bool { return i.Status == "succeeded" }

type Refund struct {
	Ref       string
	Status    string
	Amount    int64
	Simulated bool
}

// Gateway is the narrow payment provider surface.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	Confirm(ctx context.Context, ref string) (Intent, error)
	Refund(ctx context.Context, ref string, amount int64) (Refund, error)
}

// IsSimulated reports whether ref was issued by the Simulator.
func IsSimulated(ref string) bool {
	return strings.HasPrefix(ref, MockIntentPrefix) || strings.HasPrefix(ref, MockRefundPrefix)
}

// New returns a Stripe gateway, or the Simulator when no key is configured.
func New(secretKey, paymentMethod string) Gateway {
	if secretKey == "" {
		log.Println("Warning: STRIPE_SECRET_KEY not set - payments run in simulation mode")
		return NewSimulator()
	}
	return NewStripe(secretKey, paymentMethod)
}

// Simulator issues deterministic mock references. Intents created for the
// same session id get the same reference.
type Simulator struct {
	mu      sync.Mutex
	seq     int
	intents map[string]Intent
}

func NewSimulator() *Simulator {
	return &Simulator{intents: make(map[string]Intent)}
}

func (s *Simulator) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	if amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ref string
	if sid := metadata["session_id"]; sid != "" {
		ref = MockIntentPrefix + strings.ReplaceAll(sid, "-", "")
	} else {
		s.seq++
		ref = fmt.Sprintf("%s%06d", MockIntentPrefix, s.seq)
	}
	in := Intent{Ref: ref, Status: "requires_confirmation", Amount: amount, Currency: currency, Simulated: true}
	s.intents[ref] = in
	return in, nil
}

func (s *Simulator) Confirm(_ context.Context, ref string) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[ref]
	if !ok {
		return Intent{}, ErrUnknownIntent
	}
	in.Status = "succeeded"
	s.intents[ref] = in
	return in, nil
}

func (s *Simulator) Refund(_ context.Context, ref string, amount int64) (Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[ref]
	if !ok {
		return Refund{}, ErrUnknownIntent
	}
	if amount <= 0 || amount > in.Amount {
		amount = in.Amount
	}
	return Refund{
		Ref:       MockRefundPrefix + strings.TrimPrefix(ref, MockIntentPrefix),
		Status:    "succeeded",
		Amount:    amount,
		Simulated: true,
	}, nil
}
