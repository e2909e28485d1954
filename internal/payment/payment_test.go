package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

func TestSimulator_DeterministicRefs(t *testing.T) {
	ctx := context.Background()
	meta := map[string]string{"session_id": "1b4e28ba-2fa1-11d2-883f-0016d3cca427"}

	a, err := NewSimulator().CreateIntent(ctx, 3420, "usd", meta)
	require.NoError(t, err)
	b, err := NewSimulator().CreateIntent(ctx, 3420, "usd", meta)
	require.NoError(t, err)
	assert.Equal(t, a.Ref, b.Ref)
	assert.Equal(t, "pi_mock_1b4e28ba2fa111d2883f0016d3cca427", a.Ref)
	assert.True(t, IsSimulated(a.Ref))
	assert.True(t, a.Simulated)

	c, err := NewSimulator().CreateIntent(ctx, 100, "usd", nil)
	require.NoError(t, err)
	assert.Equal(t, "pi_mock_000001", c.Ref)
}

func TestSimulator_ConfirmAndRefund(t *testing.T) {
	ctx := context.Background()
	s := NewSimulator()
	in, err := s.CreateIntent(ctx, 2000, "usd", nil)
	require.NoError(t, err)
	assert.False(t, in.Succeeded())

	in, err = s.Confirm(ctx, in.Ref)
	require.NoError(t, err)
	assert.True(t, in.Succeeded())

	r, err := s.Refund(ctx, in.Ref, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), r.Amount)
	assert.True(t, strings.HasPrefix(r.Ref, MockRefundPrefix))

	_, err = s.Confirm(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrUnknownIntent)
	_, err = s.CreateIntent(ctx, 0, "usd", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNew_FallsBackToSimulator(t *testing.T) {
	_, ok := New("", "").(*Simulator)
	assert.True(t, ok)
	_, ok = New("sk_test_123", "").(*Stripe)
	assert.True(t, ok)
	assert.False(t, IsSimulated("pi_3Nabc"))
}

func TestStripe_CreateIntent(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotBody = r.PostForm.Encode()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":3420,"currency":"usd","status":"requires_confirmation"}`))
	}))
	defer srv.Close()

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{URL: stripe.String(srv.URL)})
	s := NewStripe("sk_test_123", "", stripe.WithBackends(backends))
	in, err := s.CreateIntent(context.Background(), 3420, "usd", map[string]string{"session_id": "abc"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", in.Ref)
	assert.Equal(t, int64(3420), in.Amount)
	assert.False(t, in.Simulated)
	assert.Equal(t, "/v1/payment_intents", gotPath)
	assert.Contains(t, gotBody, "amount=3420")
	assert.Contains(t, gotBody, "metadata%5Bsession_id%5D=abc")
}
