package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"

	"github.com/chadiek/voice-order/internal/geocode"
	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/stage"
)

// Argument types, one per tool.

type SearchMenuArgs struct {
	Query    string
	Category string
}

type GetItemDetailsArgs struct{ ProductID string }

type AddToOrderArgs struct {
	ProductID      string
	Quantity       int
	Customizations map[string]string
}

type RemoveFromOrderArgs struct{ ProductID string }
type CalculateTotalArgs struct{}
type CheckoutArgs struct{}

// IdentifyCustomerArgs falls back to the caller id when Phone is empty.
type IdentifyCustomerArgs struct{ Phone string }

type VerifyAddressArgs struct{ Text string }
type CreatePaymentIntentArgs struct{}
type PlaceOrderArgs struct{ PaymentMethod string }
type CancelOrderArgs struct{ Reason string }

// ProcessRefundArgs refunds the full total when Amount is zero.
type ProcessRefundArgs struct{ Amount int64 }

type LogComplaintArgs struct{ Text string }
type NotifyRestaurantArgs struct{}

type FindAvailableDriversArgs struct {
	Near     Point
	RadiusKm float64
}

// AssignDriverArgs picks the nearest available driver when DriverID is empty.
type AssignDriverArgs struct{ DriverID string }

type AdvanceTrackingArgs struct{}
type RecordFeedbackArgs struct{ Rating int }
type CompleteOrderArgs struct{}

type SendSMSArgs struct {
	To   string
	Body string
}

func (SearchMenuArgs) Tool() ID           { return SearchMenu }
func (GetItemDetailsArgs) Tool() ID       { return GetItemDetails }
func (AddToOrderArgs) Tool() ID           { return AddToOrder }
func (RemoveFromOrderArgs) Tool() ID      { return RemoveFromOrder }
func (CalculateTotalArgs) Tool() ID       { return CalculateTotal }
func (CheckoutArgs) Tool() ID             { return Checkout }
func (IdentifyCustomerArgs) Tool() ID     { return IdentifyCustomer }
func (VerifyAddressArgs) Tool() ID        { return VerifyAddress }
func (CreatePaymentIntentArgs) Tool() ID  { return CreatePaymentIntent }
func (PlaceOrderArgs) Tool() ID           { return PlaceOrder }
func (CancelOrderArgs) Tool() ID          { return CancelOrder }
func (ProcessRefundArgs) Tool() ID        { return ProcessRefund }
func (LogComplaintArgs) Tool() ID         { return LogComplaint }
func (NotifyRestaurantArgs) Tool() ID     { return NotifyRestaurant }
func (FindAvailableDriversArgs) Tool() ID { return FindAvailableDrivers }
func (AssignDriverArgs) Tool() ID         { return AssignDriver }
func (AdvanceTrackingArgs) Tool() ID      { return AdvanceTracking }
func (RecordFeedbackArgs) Tool() ID       { return RecordFeedback }
func (CompleteOrderArgs) Tool() ID        { return CompleteOrder }
func (SendSMSArgs) Tool() ID              { return SendSMS }

// Results.

type AddressResult struct {
	Normalized string
	Verified   bool
	Lat, Lon   float64
}

type PaymentResult struct {
	Ref       string
	Amount    int64
	Simulated bool
}

type PlacedOrder struct {
	OrderID          string
	ConfirmationCode string
	Totals           order.Totals
	Simulated        bool
}

type RefundResult struct {
	Ref       string
	Amount    int64
	Simulated bool
}

type KitchenTicket struct {
	OrderID     string
	PrepMinutes int
}

func (r *Registry) registerAll() {
	register(r, SearchMenu, r.searchMenu)
	register(r, GetItemDetails, r.getItemDetails)
	register(r, AddToOrder, r.addToOrder)
	register(r, RemoveFromOrder, r.removeFromOrder)
	register(r, CalculateTotal, r.calculateTotal)
	register(r, Checkout, r.checkout)
	register(r, IdentifyCustomer, r.identifyCustomer)
	register(r, VerifyAddress, r.verifyAddress)
	register(r, CreatePaymentIntent, r.createPaymentIntent)
	register(r, PlaceOrder, r.placeOrder)
	register(r, CancelOrder, r.cancelOrder)
	register(r, ProcessRefund, r.processRefund)
	register(r, LogComplaint, r.logComplaint)
	register(r, NotifyRestaurant, r.notifyRestaurant)
	register(r, FindAvailableDrivers, r.findAvailableDrivers)
	register(r, AssignDriver, r.assignDriver)
	register(r, AdvanceTracking, r.advanceTracking)
	register(r, RecordFeedback, r.recordFeedback)
	register(r, CompleteOrder, r.completeOrder)
	if r.deps.Notifier != nil {
		register(r, SendSMS, r.sendSMS)
	}
}

func (r *Registry) searchMenu(_ context.Context, _ *session.Session, a SearchMenuArgs) ([]order.Item, error) {
	if a.Category != "" && a.Query == "" {
		return r.deps.Menu.InCategory(a.Category), nil
	}
	items := r.deps.Menu.Search(a.Query)
	if a.Category == "" {
		return items, nil
	}
	var out []order.Item
	for _, it := range items {
		if it.Category == a.Category {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *Registry) getItemDetails(_ context.Context, _ *session.Session, a GetItemDetailsArgs) (order.Item, error) {
	it, ok := r.deps.Menu.Lookup(a.ProductID)
	if !ok {
		return order.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, a.ProductID)
	}
	return it, nil
}

func editable(s stage.Stage) bool {
	return s == stage.Initial || s == stage.Ordering || s == stage.AddressCapture
}

func (r *Registry) addToOrder(_ context.Context, s *session.Session, a AddToOrderArgs) (order.LineItem, error) {
	if !editable(s.Stage) {
		return order.LineItem{}, ErrOrderLocked
	}
	it, ok := r.deps.Menu.Lookup(a.ProductID)
	if !ok {
		return order.LineItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, a.ProductID)
	}
	if !it.Available {
		return order.LineItem{}, fmt.Errorf("%w: %s", ErrItemUnavailable, it.Name)
	}
	qty := a.Quantity
	if qty == 0 {
		qty = 1
	}
	li, err := order.NewLineItem(it, qty, a.Customizations)
	if err != nil {
		return order.LineItem{}, err
	}
	s.Items = append(s.Items, li)
	if s.Stage == stage.Initial {
		s.Stage = stage.Ordering
	}
	s.Recalculate()
	return li, nil
}

func (r *Registry) removeFromOrder(_ context.Context, s *session.Session, a RemoveFromOrderArgs) (order.LineItem, error) {
	if !editable(s.Stage) {
		return order.LineItem{}, ErrOrderLocked
	}
	for i, li := range s.Items {
		if li.ProductID == a.ProductID {
			s.Items = append(s.Items[:i:i], s.Items[i+1:]...)
			s.Recalculate()
			return li, nil
		}
	}
	return order.LineItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, a.ProductID)
}

func (r *Registry) calculateTotal(_ context.Context, s *session.Session, _ CalculateTotalArgs) (order.Totals, error) {
	return order.Calculate(s.Items)
}

func (r *Registry) checkout(_ context.Context, s *session.Session, _ CheckoutArgs) (order.Totals, error) {
	t, err := order.Calculate(s.Items)
	if err != nil {
		return order.Totals{}, err
	}
	next, err := stage.Advance(s.Stage, stage.AddressCapture)
	if err != nil {
		return order.Totals{}, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}
	s.Stage = next
	s.PendingCategory = ""
	s.TotalAmount = t.Total
	return t, nil
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (r *Registry) identifyCustomer(_ context.Context, s *session.Session, a IdentifyCustomerArgs) (string, error) {
	phone := a.Phone
	if phone == "" {
		phone = s.CallerID
	}
	d := digitsOf(phone)
	if len(d) < 10 {
		return "", ErrCustomerUnidentified
	}
	s.CustomerID = "cust_" + d
	return s.CustomerID, nil
}

func (r *Registry) verifyAddress(ctx context.Context, s *session.Session, a VerifyAddressArgs) (AddressResult, error) {
	cleaned := geocode.Clean(a.Text)
	loc, err := r.deps.Geocoder.Verify(ctx, cleaned)
	switch {
	case errors.Is(err, geocode.ErrNotFound):
		s.Address = session.Address{Raw: a.Text, Normalized: cleaned}
		return AddressResult{Normalized: cleaned}, ErrAddressUnverifiable
	case err != nil:
		// geocoder outage: fall back to the offline rule
		log.Printf("[%s] geocoder failed, using plausibility check: %v", s.ID, err)
		if loc, err = (geocode.Offline{}).Verify(ctx, cleaned); err != nil {
			s.Address = session.Address{Raw: a.Text, Normalized: cleaned}
			return AddressResult{Normalized: cleaned}, ErrAddressUnverifiable
		}
	}
	s.Address = session.Address{
		Raw:        a.Text,
		Normalized: loc.FormattedAddress,
		Verified:   true,
		Lat:        loc.Lat,
		Lon:        loc.Lon,
	}
	return AddressResult{Normalized: loc.FormattedAddress, Verified: true, Lat: loc.Lat, Lon: loc.Lon}, nil
}

func (r *Registry) createPaymentIntent(ctx context.Context, s *session.Session, _ CreatePaymentIntentArgs) (PaymentResult, error) {
	t, err := order.Calculate(s.Items)
	if err != nil {
		return PaymentResult{}, err
	}
	if !s.Address.Set() {
		return PaymentResult{}, ErrNoAddress
	}
	if s.PaymentRef != "" && s.Stage == stage.PaymentPending {
		return PaymentResult{Ref: s.PaymentRef, Amount: t.Total, Simulated: s.Simulated}, nil
	}
	next, err := stage.Advance(s.Stage, stage.PaymentPending)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}
	in, err := r.deps.Payments.CreateIntent(ctx, t.Total, r.deps.Currency, map[string]string{
		"session_id": s.ID,
		"call_id":    s.CallID,
	})
	if err != nil {
		return PaymentResult{}, &ExecutionError{Tool: CreatePaymentIntent, Err: fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)}
	}
	s.PaymentRef = in.Ref
	s.Simulated = in.Simulated
	s.AwaitingConfirmation = true
	s.TotalAmount = t.Total
	s.Stage = next
	return PaymentResult{Ref: in.Ref, Amount: t.Total, Simulated: in.Simulated}, nil
}

func (r *Registry) placeOrder(ctx context.Context, s *session.Session, a PlaceOrderArgs) (PlacedOrder, error) {
	t, err := order.Calculate(s.Items)
	if err != nil {
		return PlacedOrder{}, err
	}
	if s.CustomerID == "" {
		return PlacedOrder{}, ErrCustomerUnidentified
	}
	if !s.Address.Set() {
		return PlacedOrder{}, ErrNoAddress
	}
	if s.PaymentRef == "" {
		if _, err := r.createPaymentIntent(ctx, s, CreatePaymentIntentArgs{}); err != nil {
			return PlacedOrder{}, err
		}
	}
	if s.Stage != stage.PaymentPending {
		return PlacedOrder{}, fmt.Errorf("%w: no pending payment (stage %s)", ErrInvalidStage, s.Stage)
	}
	in, err := r.deps.Payments.Confirm(ctx, s.PaymentRef)
	if err != nil {
		return PlacedOrder{}, &ExecutionError{Tool: PlaceOrder, Err: fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)}
	}
	if !in.Succeeded() {
		return PlacedOrder{}, &ExecutionError{Tool: PlaceOrder, Err: fmt.Errorf("%w: payment status %s", ErrPaymentUnavailable, in.Status)}
	}
	id := ulid.Make().String()
	s.OrderID = "ord_" + strings.ToLower(id)
	s.ConfirmationCode = id[len(id)-6:]
	s.AwaitingConfirmation = false
	s.TotalAmount = t.Total
	s.Stage = stage.PaymentConfirmed
	method := a.PaymentMethod
	if method == "" {
		method = "card"
	}
	log.Printf("[%s] order %s placed: total=%s method=%s payment=%s", s.ID, s.OrderID, order.Money(t.Total), method, s.PaymentRef)
	return PlacedOrder{OrderID: s.OrderID, ConfirmationCode: s.ConfirmationCode, Totals: t, Simulated: s.Simulated}, nil
}

func (r *Registry) cancelOrder(_ context.Context, s *session.Session, a CancelOrderArgs) (stage.Stage, error) {
	next, err := stage.Advance(s.Stage, stage.Cancelled)
	if err != nil {
		return s.Stage, ErrNotCancellable
	}
	s.Stage = next
	s.AwaitingConfirmation = false
	if a.Reason != "" {
		log.Printf("[%s] order cancelled: %s", s.ID, a.Reason)
	}
	return next, nil
}

func paid(st stage.Stage) bool {
	switch st {
	case stage.Initial, stage.Ordering, stage.AddressCapture, stage.PaymentPending, stage.Cancelled:
		return false
	}
	return true
}

func (r *Registry) processRefund(ctx context.Context, s *session.Session, a ProcessRefundArgs) (RefundResult, error) {
	if s.PaymentRef == "" || !paid(s.Stage) {
		return RefundResult{}, ErrNoPayment
	}
	if s.RefundRef != "" {
		return RefundResult{Ref: s.RefundRef, Simulated: s.Simulated}, nil
	}
	amount := a.Amount
	if amount <= 0 || amount > s.TotalAmount {
		amount = s.TotalAmount
	}
	rf, err := r.deps.Payments.Refund(ctx, s.PaymentRef, amount)
	if err != nil {
		return RefundResult{}, &ExecutionError{Tool: ProcessRefund, Err: fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)}
	}
	s.RefundRef = rf.Ref
	return RefundResult{Ref: rf.Ref, Amount: rf.Amount, Simulated: rf.Simulated}, nil
}

func (r *Registry) logComplaint(_ context.Context, s *session.Session, a LogComplaintArgs) (string, error) {
	text := strings.TrimSpace(a.Text)
	if text == "" {
		text = "unspecified"
	}
	s.Complaints = append(s.Complaints, text)
	return "tkt_" + strings.ToLower(ulid.Make().String()), nil
}

func (r *Registry) notifyRestaurant(_ context.Context, s *session.Session, _ NotifyRestaurantArgs) (KitchenTicket, error) {
	next, err := stage.Advance(s.Stage, stage.RestaurantNotified)
	if err != nil {
		return KitchenTicket{}, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}
	s.Stage = next
	return KitchenTicket{OrderID: s.OrderID, PrepMinutes: 20}, nil
}

func (r *Registry) findAvailableDrivers(_ context.Context, _ *session.Session, a FindAvailableDriversArgs) ([]DriverMatch, error) {
	p := a.Near
	if p == (Point{}) {
		p = r.deps.Restaurant
	}
	radius := a.RadiusKm
	if radius <= 0 {
		radius = 5
	}
	return nearby(r.deps.Drivers, p, radius), nil
}

func (r *Registry) assignDriver(_ context.Context, s *session.Session, a AssignDriverArgs) (DriverMatch, error) {
	if s.Stage != stage.RestaurantNotified {
		return DriverMatch{}, fmt.Errorf("%w: cannot assign a driver at %s", ErrInvalidStage, s.Stage)
	}
	matches := nearby(r.deps.Drivers, r.deps.Restaurant, 5)
	var pick *DriverMatch
	for i := range matches {
		if a.DriverID == "" || matches[i].Driver.ID == a.DriverID {
			pick = &matches[i]
			break
		}
	}
	if pick == nil {
		return DriverMatch{}, ErrNoDriverAvailable
	}
	d := pick.Driver
	s.Driver = &session.Driver{ID: d.ID, Name: d.Name, Vehicle: d.Vehicle, Rating: d.Rating, Phone: d.Phone}
	s.Stage = stage.DriverAssigned
	return *pick, nil
}

func (r *Registry) advanceTracking(_ context.Context, s *session.Session, _ AdvanceTrackingArgs) (stage.Stage, error) {
	if s.Stage == stage.Delivered {
		return s.Stage, nil
	}
	if !stage.Tracking(s.Stage) {
		return s.Stage, fmt.Errorf("%w: nothing to track at %s", ErrInvalidStage, s.Stage)
	}
	next, _ := stage.Next(s.Stage)
	s.Stage = next
	return next, nil
}

func (r *Registry) recordFeedback(_ context.Context, s *session.Session, a RecordFeedbackArgs) (int, error) {
	if a.Rating < 1 || a.Rating > 5 {
		return 0, ErrInvalidRating
	}
	if s.Stage != stage.Delivered && s.Stage != stage.Completed {
		return 0, fmt.Errorf("%w: order not delivered yet", ErrInvalidStage)
	}
	s.Rating = a.Rating
	return a.Rating, nil
}

func (r *Registry) completeOrder(_ context.Context, s *session.Session, _ CompleteOrderArgs) (stage.Stage, error) {
	next, err := stage.Advance(s.Stage, stage.Completed)
	if err != nil {
		return s.Stage, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}
	s.Stage = next
	return next, nil
}

func (r *Registry) sendSMS(ctx context.Context, s *session.Session, a SendSMSArgs) (bool, error) {
	to := a.To
	if to == "" && s != nil {
		to = s.CallerID
	}
	if err := r.deps.Notifier.SendSMS(ctx, to, a.Body); err != nil {
		return false, &ExecutionError{Tool: SendSMS, Err: err}
	}
	return true, nil
}
