package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/voice-order/internal/geocode"
	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/payment"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/stage"
)

type fakeNotifier struct {
	to, body string
	err      error
}

func (f *fakeNotifier) SendSMS(_ context.Context, to, body string) error {
	f.to, f.body = to, body
	return f.err
}

type failingGateway struct{ payment.Gateway }

func (failingGateway) CreateIntent(context.Context, int64, string, map[string]string) (payment.Intent, error) {
	return payment.Intent{}, errors.New("stripe down")
}

type brokenGeocoder struct{}

func (brokenGeocoder) Verify(context.Context, string) (geocode.Location, error) {
	return geocode.Location{}, errors.New("quota exceeded")
}

func newSess() *session.Session {
	return &session.Session{
		ID:          "4b1c-77",
		CallID:      "CA123",
		CallerID:    "+1 (555) 010-2030",
		ActiveAgent: session.AgentOrdering,
		Stage:       stage.Initial,
	}
}

func TestExecute_ScopeAndUnknown(t *testing.T) {
	r := NewRegistry(Deps{})
	ctx := context.Background()

	_, err := r.Execute(ctx, session.AgentDriver, newSess(), AddToOrderArgs{ProductID: "pizza-margherita"})
	assert.ErrorIs(t, err, ErrNotPermitted)

	_, err = r.Execute(ctx, session.AgentOrdering, nil, AddToOrderArgs{ProductID: "pizza-margherita"})
	assert.ErrorIs(t, err, ErrSessionRequired)

	_, err = r.Execute(ctx, session.AgentOrdering, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

	// send_sms is not registered without a notifier
	_, err = r.Execute(ctx, session.AgentTracking, newSess(), SendSMSArgs{Body: "hi"})
	assert.ErrorIs(t, err, ErrUnknownTool)

	items, err := r.Execute(ctx, session.AgentOrdering, nil, SearchMenuArgs{Query: "roll", Category: "sushi"})
	require.NoError(t, err)
	assert.NotEmpty(t, items)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("place_order")
	require.NoError(t, err)
	assert.Equal(t, PlaceOrder, id)

	_, err = ParseID("launch_rocket")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestListFor(t *testing.T) {
	r := NewRegistry(Deps{Notifier: &fakeNotifier{}})
	var ids []ID
	for _, d := range r.ListFor(session.AgentTracking) {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []ID{AdvanceTracking, SendSMS}, ids)
	assert.Empty(t, r.ListFor(session.AgentHuman))
}

func TestAddAndRemove(t *testing.T) {
	r := NewRegistry(Deps{})
	ctx := context.Background()
	s := newSess()
	tb := r.Bind(session.AgentOrdering, s)

	li, err := Exec[order.LineItem](ctx, tb, AddToOrderArgs{ProductID: "pizza-pepperoni", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3598), li.Subtotal)
	assert.Equal(t, stage.Ordering, s.Stage)
	assert.Positive(t, s.TotalAmount)

	_, err = Exec[order.LineItem](ctx, tb, AddToOrderArgs{ProductID: "sushi-rainbow"})
	assert.ErrorIs(t, err, ErrItemUnavailable)

	_, err = Exec[order.LineItem](ctx, tb, AddToOrderArgs{ProductID: "tacos"})
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = Exec[order.LineItem](ctx, tb, RemoveFromOrderArgs{ProductID: "pizza-pepperoni"})
	require.NoError(t, err)
	assert.Empty(t, s.Items)
	assert.Zero(t, s.TotalAmount)

	assert.Len(t, tb.Calls(), 4)
}

func TestCheckout(t *testing.T) {
	r := NewRegistry(Deps{})
	ctx := context.Background()
	s := newSess()
	tb := r.Bind(session.AgentOrdering, s)

	_, err := Exec[order.Totals](ctx, tb, CheckoutArgs{})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = Exec[order.LineItem](ctx, tb, AddToOrderArgs{ProductID: "burger-classic"})
	require.NoError(t, err)
	tot, err := Exec[order.Totals](ctx, tb, CheckoutArgs{})
	require.NoError(t, err)
	assert.Equal(t, int64(500), tot.DeliveryFee)
	assert.Equal(t, stage.AddressCapture, s.Stage)
}

func TestIdentifyCustomer(t *testing.T) {
	r := NewRegistry(Deps{})
	ctx := context.Background()
	s := newSess()
	tb := r.Bind(session.AgentOrdering, s)

	id, err := Exec[string](ctx, tb, IdentifyCustomerArgs{})
	require.NoError(t, err)
	assert.Equal(t, "cust_15550102030", id)

	s.CallerID = "anonymous"
	_, err = Exec[string](ctx, tb, IdentifyCustomerArgs{})
	assert.ErrorIs(t, err, ErrCustomerUnidentified)
}

func TestVerifyAddress(t *testing.T) {
	ctx := context.Background()

	s := newSess()
	tb := NewRegistry(Deps{}).Bind(session.AgentAddress, s)
	res, err := Exec[AddressResult](ctx, tb, VerifyAddressArgs{Text: "my address is 123 main street springfield please"})
	require.NoError(t, err)
	assert.Equal(t, "123 Main Street Springfield", res.Normalized)
	assert.True(t, s.Address.Set())

	s = newSess()
	tb = NewRegistry(Deps{}).Bind(session.AgentAddress, s)
	_, err = Exec[AddressResult](ctx, tb, VerifyAddressArgs{Text: "the park"})
	assert.ErrorIs(t, err, ErrAddressUnverifiable)
	assert.False(t, s.Address.Verified)
	assert.Equal(t, "the park", s.Address.Raw)

	// geocoder outage falls back to the plausibility rule
	s = newSess()
	tb = NewRegistry(Deps{Geocoder: brokenGeocoder{}}).Bind(session.AgentAddress, s)
	_, err = Exec[AddressResult](ctx, tb, VerifyAddressArgs{Text: "42 elm road apt 5"})
	require.NoError(t, err)
	assert.True(t, s.Address.Verified)
}

// orderedSession walks a session up to payment_pending.
func orderedSession(t *testing.T, r *Registry) *session.Session {
	t.Helper()
	ctx := context.Background()
	s := newSess()
	ord := r.Bind(session.AgentOrdering, s)
	_, err := Exec[order.LineItem](ctx, ord, AddToOrderArgs{ProductID: "pizza-margherita"})
	require.NoError(t, err)
	_, err = Exec[order.LineItem](ctx, ord, AddToOrderArgs{ProductID: "pasta-mac"})
	require.NoError(t, err)
	_, err = Exec[order.Totals](ctx, ord, CheckoutArgs{})
	require.NoError(t, err)

	addr := r.Bind(session.AgentAddress, s)
	_, err = Exec[string](ctx, addr, IdentifyCustomerArgs{})
	require.NoError(t, err)
	_, err = Exec[AddressResult](ctx, addr, VerifyAddressArgs{Text: "123 Main Street Springfield"})
	require.NoError(t, err)
	_, err = Exec[PaymentResult](ctx, addr, CreatePaymentIntentArgs{})
	require.NoError(t, err)
	return s
}

func TestPaymentFlow(t *testing.T) {
	r := NewRegistry(Deps{})
	ctx := context.Background()
	s := orderedSession(t, r)

	assert.Equal(t, stage.PaymentPending, s.Stage)
	assert.True(t, s.AwaitingConfirmation)
	assert.Equal(t, "pi_mock_4b1c77", s.PaymentRef)
	assert.Equal(t, int64(3420), s.TotalAmount)

	pay := r.Bind(session.AgentPayment, s)
	again, err := Exec[PaymentResult](ctx, pay, CreatePaymentIntentArgs{})
	require.NoError(t, err)
	assert.Equal(t, s.PaymentRef, again.Ref)

	placed, err := Exec[PlacedOrder](ctx, pay, PlaceOrderArgs{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(placed.OrderID, "ord_"))
	assert.Len(t, placed.ConfirmationCode, 6)
	assert.True(t, placed.Simulated)
	assert.Equal(t, stage.PaymentConfirmed, s.Stage)
	assert.False(t, s.AwaitingConfirmation)

	_, err = Exec[stage.Stage](ctx, pay, CancelOrderArgs{})
	assert.ErrorIs(t, err, ErrNotCancellable)

	sup := r.Bind(session.AgentSupport, s)
	rf, err := Exec[RefundResult](ctx, sup, ProcessRefundArgs{})
	require.NoError(t, err)
	assert.Equal(t, "re_mock_4b1c77", rf.Ref)
	assert.Equal(t, int64(3420), rf.Amount)
}

func TestPaymentPreconditions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Deps{})
	s := newSess()
	s.Stage = stage.AddressCapture
	pay := r.Bind(session.AgentPayment, s)

	_, err := Exec[PlacedOrder](ctx, pay, PlaceOrderArgs{})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	s.Items = []order.LineItem{{ProductID: "burger-classic", Quantity: 1, UnitPrice: 1299, Subtotal: 1299}}
	_, err = Exec[PlacedOrder](ctx, pay, PlaceOrderArgs{})
	assert.ErrorIs(t, err, ErrCustomerUnidentified)

	s.CustomerID = "cust_1"
	_, err = Exec[PlacedOrder](ctx, pay, PlaceOrderArgs{})
	assert.ErrorIs(t, err, ErrNoAddress)

	_, err = Exec[PaymentResult](ctx, pay, CreatePaymentIntentArgs{})
	assert.ErrorIs(t, err, ErrNoAddress)

	s.Address = session.Address{Normalized: "1 A St Springfield", Verified: true}
	_, err = Exec[PaymentResult](ctx, NewRegistry(Deps{Payments: failingGateway{}}).Bind(session.AgentPayment, s), CreatePaymentIntentArgs{})
	var exec *ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.ErrorIs(t, err, ErrPaymentUnavailable)
	assert.Equal(t, stage.AddressCapture, s.Stage)
}

func TestCancelAndRefundRules(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Deps{})
	s := newSess()
	s.Stage = stage.Ordering
	sup := r.Bind(session.AgentSupport, s)

	_, err := Exec[RefundResult](ctx, sup, ProcessRefundArgs{})
	assert.ErrorIs(t, err, ErrNoPayment)

	st, err := Exec[stage.Stage](ctx, sup, CancelOrderArgs{Reason: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, stage.Cancelled, st)

	ticket, err := Exec[string](ctx, sup, LogComplaintArgs{Text: "cold food"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket, "tkt_"))
	assert.Equal(t, []string{"cold food"}, s.Complaints)
}

func TestFulfilment(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	r := NewRegistry(Deps{Notifier: notifier})
	s := orderedSession(t, r)
	_, err := Exec[PlacedOrder](ctx, r.Bind(session.AgentPayment, s), PlaceOrderArgs{})
	require.NoError(t, err)

	ticket, err := Exec[KitchenTicket](ctx, r.Bind(session.AgentRestaurant, s), NotifyRestaurantArgs{})
	require.NoError(t, err)
	assert.Equal(t, 20, ticket.PrepMinutes)
	assert.Equal(t, stage.RestaurantNotified, s.Stage)

	drv := r.Bind(session.AgentDriver, s)
	matches, err := Exec[[]DriverMatch](ctx, drv, FindAvailableDriversArgs{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Michael", matches[0].Driver.Name)
	assert.Less(t, matches[0].DistanceKm, matches[1].DistanceKm)

	m, err := Exec[DriverMatch](ctx, drv, AssignDriverArgs{})
	require.NoError(t, err)
	assert.Equal(t, "Michael", m.Driver.Name)
	require.NotNil(t, s.Driver)
	assert.Equal(t, stage.DriverAssigned, s.Stage)

	trk := r.Bind(session.AgentTracking, s)
	want := []stage.Stage{stage.Preparing, stage.PickedUp, stage.OnTheWay, stage.AlmostThere, stage.Delivered, stage.Delivered}
	for _, w := range want {
		got, err := Exec[stage.Stage](ctx, trk, AdvanceTrackingArgs{})
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
	_, err = Exec[bool](ctx, trk, SendSMSArgs{Body: "Your order is here"})
	require.NoError(t, err)
	assert.Equal(t, s.CallerID, notifier.to)

	post := r.Bind(session.AgentPostDelivery, s)
	_, err = Exec[int](ctx, post, RecordFeedbackArgs{Rating: 7})
	assert.ErrorIs(t, err, ErrInvalidRating)
	rating, err := Exec[int](ctx, post, RecordFeedbackArgs{Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, rating)
	st, err := Exec[stage.Stage](ctx, post, CompleteOrderArgs{})
	require.NoError(t, err)
	assert.Equal(t, stage.Completed, st)
}

func TestAssignDriver_NoneInRange(t *testing.T) {
	far := Point{Lat: 10, Lon: 10}
	r := NewRegistry(Deps{Drivers: []Driver{{ID: "d1", Name: "Zed", Location: far, Available: true}}})
	s := newSess()
	s.Stage = stage.RestaurantNotified
	_, err := Exec[DriverMatch](context.Background(), r.Bind(session.AgentDriver, s), AssignDriverArgs{})
	assert.ErrorIs(t, err, ErrNoDriverAvailable)
}

type panicArgs struct{}

func (panicArgs) Tool() ID { return CalculateTotal }

func TestExecute_RecoversPanicsAndObserves(t *testing.T) {
	var seen []ID
	r := NewRegistry(Deps{Observe: func(id ID, _ error) { seen = append(seen, id) }, Now: func() time.Time { return time.Unix(0, 0) }})
	r.handlers[CalculateTotal] = func(context.Context, *session.Session, Args) (any, error) { panic("boom") }

	_, err := r.Execute(context.Background(), session.AgentOrdering, newSess(), panicArgs{})
	var exec *ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.Equal(t, CalculateTotal, exec.Tool)
	assert.Equal(t, []ID{CalculateTotal}, seen)
}
