package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/chadiek/voice-order/internal/geocode"
	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/payment"
	"github.com/chadiek/voice-order/internal/session"
)

// ID names a tool. The set is closed; see the constants below.
type ID string

const (
	SearchMenu           ID = "search_menu"
	GetItemDetails       ID = "get_item_details"
	AddToOrder           ID = "add_to_order"
	RemoveFromOrder      ID = "remove_from_order"
	CalculateTotal       ID = "calculate_total"
	Checkout             ID = "checkout"
	IdentifyCustomer     ID = "identify_customer"
	VerifyAddress        ID = "verify_address"
	CreatePaymentIntent  ID = "create_payment_intent"
	PlaceOrder           ID = "place_order"
	CancelOrder          ID = "cancel_order"
	ProcessRefund        ID = "process_refund"
	LogComplaint         ID = "log_complaint"
	NotifyRestaurant     ID = "notify_restaurant"
	FindAvailableDrivers ID = "find_available_drivers"
	AssignDriver         ID = "assign_driver"
	AdvanceTracking      ID = "advance_tracking"
	RecordFeedback       ID = "record_feedback"
	CompleteOrder        ID = "complete_order"
	SendSMS              ID = "send_sms"
)

var (
	ErrUnknownTool          = errors.New("unknown tool")
	ErrNotPermitted         = errors.New("tool not available to this agent")
	ErrSessionRequired      = errors.New("tool requires a session")
	ErrItemUnavailable      = errors.New("item is unavailable")
	ErrItemNotFound         = errors.New("item not found")
	ErrEmptyOrder           = order.ErrEmptyOrder
	ErrCustomerUnidentified = errors.New("customer not identified")
	ErrNoAddress            = errors.New("no delivery address")
	ErrAddressUnverifiable  = errors.New("address could not be verified")
	ErrPaymentUnavailable   = errors.New("payment system unavailable")
	ErrNoPayment            = errors.New("no confirmed payment on this order")
	ErrNotCancellable       = errors.New("order can no longer be cancelled")
	ErrOrderLocked          = errors.New("order can no longer be changed")
	ErrInvalidStage         = errors.New("operation not valid at this stage")
	ErrNoDriverAvailable    = errors.New("no driver available")
	ErrInvalidRating        = errors.New("rating must be between 1 and 5")
)

// ExecutionError reports that a tool's underlying operation failed.
type ExecutionError struct {
	Tool ID
	Err  error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// ParseID maps a tool name to its ID.
func ParseID(name string) (ID, error) {
	id := ID(name)
	if _, ok := descriptors[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return id, nil
}

// Args is implemented by each tool's argument struct.
type Args interface {
	Tool() ID
}

// Descriptor describes a tool to agents and prompts.
type Descriptor struct {
	ID           ID
	Description  string
	Params       []string
	NeedsSession bool
}

var descriptors = map[ID]Descriptor{
	SearchMenu:           {SearchMenu, "Search the menu by name, category or ingredient", []string{"query", "category"}, false},
	GetItemDetails:       {GetItemDetails, "Look up one menu item", []string{"product_id"}, false},
	AddToOrder:           {AddToOrder, "Add a product to the order", []string{"product_id", "quantity", "customizations"}, true},
	RemoveFromOrder:      {RemoveFromOrder, "Remove a product from the order", []string{"product_id"}, true},
	CalculateTotal:       {CalculateTotal, "Price the order including fees and tax", nil, true},
	Checkout:             {Checkout, "Finish item selection and move on to delivery details", nil, true},
	IdentifyCustomer:     {IdentifyCustomer, "Identify the customer by phone number", []string{"phone"}, true},
	VerifyAddress:        {VerifyAddress, "Normalize and verify a delivery address", []string{"text"}, true},
	CreatePaymentIntent:  {CreatePaymentIntent, "Open a payment for the order total", nil, true},
	PlaceOrder:           {PlaceOrder, "Confirm payment and place the order", []string{"payment_method"}, true},
	CancelOrder:          {CancelOrder, "Cancel an order that has not been paid", []string{"reason"}, true},
	ProcessRefund:        {ProcessRefund, "Refund a paid order", []string{"amount"}, true},
	LogComplaint:         {LogComplaint, "Record a customer complaint", []string{"text"}, true},
	NotifyRestaurant:     {NotifyRestaurant, "Send the paid order to the kitchen", nil, true},
	FindAvailableDrivers: {FindAvailableDrivers, "List drivers near a location", []string{"lat", "lon", "radius_km"}, false},
	AssignDriver:         {AssignDriver, "Assign a driver to the order", []string{"driver_id"}, true},
	AdvanceTracking:      {AdvanceTracking, "Report and advance the delivery status", nil, true},
	RecordFeedback:       {RecordFeedback, "Store the customer's rating", []string{"rating"}, true},
	CompleteOrder:        {CompleteOrder, "Close a delivered order", nil, true},
	SendSMS:              {SendSMS, "Text the customer", []string{"to", "body"}, false},
}

var scopes = map[session.AgentName][]ID{
	session.AgentOrdering:     {SearchMenu, GetItemDetails, AddToOrder, RemoveFromOrder, CalculateTotal, Checkout, IdentifyCustomer},
	session.AgentAddress:      {VerifyAddress, CalculateTotal, CreatePaymentIntent, IdentifyCustomer},
	session.AgentPayment:      {CalculateTotal, CreatePaymentIntent, PlaceOrder, CancelOrder, IdentifyCustomer, SendSMS},
	session.AgentRestaurant:   {NotifyRestaurant},
	session.AgentDriver:       {FindAvailableDrivers, AssignDriver},
	session.AgentTracking:     {AdvanceTracking, SendSMS},
	session.AgentSupport:      {CancelOrder, ProcessRefund, LogComplaint, CalculateTotal},
	session.AgentPostDelivery: {RecordFeedback, CompleteOrder, LogComplaint, SendSMS},
}

// PaymentGateway creates, confirms and refunds charges.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (payment.Intent, error)
	Confirm(ctx context.Context, ref string) (payment.Intent, error)
	Refund(ctx context.Context, ref string, amount int64) (payment.Refund, error)
}

// Notifier sends text messages.
type Notifier interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Menu       *order.Menu
	Payments   PaymentGateway
	Geocoder   geocode.Verifier
	Notifier   Notifier
	Drivers    []Driver
	Restaurant Point
	Currency   string
	Now        func() time.Time
	// Observe, if set, is told about every execution.
	Observe func(tool ID, err error)
}

type handler func(ctx context.Context, s *session.Session, a Args) (any, error)

// Registry dispatches tool calls to typed handlers.
type Registry struct {
	deps     Deps
	handlers map[ID]handler
}

func NewRegistry(d Deps) *Registry {
	if d.Menu == nil {
		d.Menu = order.DefaultMenu()
	}
	if d.Payments == nil {
		d.Payments = payment.NewSimulator()
	}
	if d.Geocoder == nil {
		d.Geocoder = geocode.Offline{}
	}
	if d.Drivers == nil {
		d.Drivers = DefaultDrivers(DefaultRestaurant)
	}
	if d.Restaurant == (Point{}) {
		d.Restaurant = DefaultRestaurant
	}
	if d.Currency == "" {
		d.Currency = "usd"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	r := &Registry{deps: d, handlers: make(map[ID]handler)}
	r.registerAll()
	return r
}

// register binds a typed handler so argument shapes are checked at compile time.
func register[A Args, R any](r *Registry, id ID, fn func(ctx context.Context, s *session.Session, a A) (R, error)) {
	r.handlers[id] = func(ctx context.Context, s *session.Session, a Args) (any, error) {
		typed, ok := a.(A)
		if !ok {
			return nil, fmt.Errorf("tool %s: unexpected arguments %T", id, a)
		}
		return fn(ctx, s, typed)
	}
}

// ListFor returns the tools an agent may call, sorted by id.
func (r *Registry) ListFor(agent session.AgentName) []Descriptor {
	ids := scopes[agent]
	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.handlers[id]; ok {
			out = append(out, descriptors[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Permitted reports whether agent may call id.
func Permitted(agent session.AgentName, id ID) bool {
	for _, v := range scopes[agent] {
		if v == id {
			return true
		}
	}
	return false
}

// Execute runs one tool for agent. Session-bound tools mutate s in place; the
// caller decides when to commit it. Panics in a handler become ExecutionErrors.
func (r *Registry) Execute(ctx context.Context, agent session.AgentName, s *session.Session, args Args) (out any, err error) {
	if args == nil {
		return nil, ErrUnknownTool
	}
	id := args.Tool()
	defer func() {
		if r.deps.Observe != nil {
			r.deps.Observe(id, err)
		}
	}()
	h, ok := r.handlers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, id)
	}
	if !Permitted(agent, id) {
		return nil, fmt.Errorf("%w: %s cannot call %s", ErrNotPermitted, agent, id)
	}
	if descriptors[id].NeedsSession && s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionRequired, id)
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("tool %s panicked: %v", id, rec)
			out, err = nil, &ExecutionError{Tool: id, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return h(ctx, s, args)
}

// Invocation records one tool call made during a turn.
type Invocation struct {
	Tool ID
	Err  error
	At   time.Time
}

// Toolbox binds the registry to one agent and one working session for the
// duration of a turn and records what was called.
type Toolbox struct {
	reg   *Registry
	agent session.AgentName
	sess  *session.Session
	calls []Invocation
}

func (r *Registry) Bind(agent session.AgentName, s *session.Session) *Toolbox {
	return &Toolbox{reg: r, agent: agent, sess: s}
}

func (tb *Toolbox) Execute(ctx context.Context, args Args) (any, error) {
	out, err := tb.reg.Execute(ctx, tb.agent, tb.sess, args)
	id := ID("")
	if args != nil {
		id = args.Tool()
	}
	tb.calls = append(tb.calls, Invocation{Tool: id, Err: err, At: tb.reg.deps.Now()})
	return out, err
}

// Calls lists the invocations made so far.
func (tb *Toolbox) Calls() []Invocation { return append([]Invocation(nil), tb.calls...) }

// Menu exposes the catalog for read-only lookups.
func (tb *Toolbox) Menu() *order.Menu { return tb.reg.deps.Menu }

// Exec runs args through tb and asserts the result type.
func Exec[R any](ctx context.Context, tb *Toolbox, args Args) (R, error) {
	var zero R
	out, err := tb.Execute(ctx, args)
	if err != nil {
		return zero, err
	}
	r, ok := out.(R)
	if !ok {
		return zero, &ExecutionError{Tool: args.Tool(), Err: fmt.Errorf("unexpected result %T", out)}
	}
	return r, nil
}
