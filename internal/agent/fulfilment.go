package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/stage"
	"github.com/chadiek/voice-order/internal/tools"
)

var restaurantRules = []rule{
	{to: session.AgentTracking, keywords: []string{
		"cannot complete", "out of everything", "closed", "power outage",
		"equipment broken", "will take 1 hour", "2 hours", "cancel order",
	}},
}

// Restaurant sends the paid order to the kitchen.
type Restaurant struct{}

func (*Restaurant) Name() session.AgentName { return session.AgentRestaurant }

func (*Restaurant) ComposePrompt(s *session.Session) string {
	return composePrompt("You coordinate with the restaurant kitchen and report preparation times.", s)
}

func (*Restaurant) ShouldTransfer(s *session.Session) session.AgentName {
	return firstMatch(s.LastUserUtterance(), restaurantRules)
}

func (r *Restaurant) Introduce(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	if s.Stage != stage.PaymentConfirmed {
		return Decision{Next: session.AgentDriver}, nil
	}
	t, err := tools.Exec[tools.KitchenTicket](ctx, tb, tools.NotifyRestaurantArgs{})
	if err != nil {
		log.Printf("[%s] kitchen notification failed: %v", s.ID, err)
		return stay("I'm having trouble reaching the kitchen. Give me a moment and say okay to retry.")
	}
	return Decision{
		Reply: fmt.Sprintf("The kitchen has your order. It'll be ready in about %d minutes.", t.PrepMinutes),
		Next:  session.AgentDriver,
	}, nil
}

func (r *Restaurant) DecideReply(ctx context.Context, s *session.Session, _ string, tb *tools.Toolbox) (Decision, error) {
	return r.Introduce(ctx, s, tb)
}

var driverRules = []rule{
	{to: session.AgentTracking, keywords: []string{
		"customer not available", "wrong address", "cannot find address",
		"gate code needed", "building access", "customer not responding",
		"delivery instructions unclear",
	}},
}

// Driver finds and assigns the nearest courier.
type Driver struct{}

func (*Driver) Name() session.AgentName { return session.AgentDriver }

func (*Driver) ComposePrompt(s *session.Session) string {
	return composePrompt("You assign the nearest available driver and pass on delivery details.", s)
}

func (*Driver) ShouldTransfer(s *session.Session) session.AgentName {
	return firstMatch(s.LastUserUtterance(), driverRules)
}

func (d *Driver) Introduce(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	if s.Stage != stage.RestaurantNotified {
		return Decision{Next: session.AgentTracking}, nil
	}
	m, err := tools.Exec[tools.DriverMatch](ctx, tb, tools.AssignDriverArgs{})
	if errors.Is(err, tools.ErrNoDriverAvailable) {
		return stay("All of our drivers are busy right now. I'll keep looking, just say okay to check again.")
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Reply: fmt.Sprintf("%s will deliver it in a %s.", m.Driver.Name, m.Driver.Vehicle),
		Next:  session.AgentTracking,
	}, nil
}

func (d *Driver) DecideReply(ctx context.Context, s *session.Session, _ string, tb *tools.Toolbox) (Decision, error) {
	return d.Introduce(ctx, s, tb)
}

var trackingRules = []rule{
	{to: session.AgentSupport, keywords: []string{
		"cancel my order", "i want a refund", "this is unacceptable",
		"speak to a manager", "human agent", "terrible service",
		"never using again", "compensation", "credit",
	}},
}

// Tracking reports delivery progress, one step per status request.
type Tracking struct{}

func (*Tracking) Name() session.AgentName { return session.AgentTracking }

func (*Tracking) ComposePrompt(s *session.Session) string {
	return composePrompt("You give delivery status updates and keep the caller informed about timing.", s)
}

func (*Tracking) ShouldTransfer(s *session.Session) session.AgentName {
	return firstMatch(s.LastUserUtterance(), trackingRules)
}

// untracked returns the agent that owns an order which has not been placed
// yet, or "" once there is something to track.
func untracked(st stage.Stage) session.AgentName {
	switch st {
	case stage.Initial, stage.Ordering:
		return session.AgentOrdering
	case stage.AddressCapture:
		return session.AgentAddress
	case stage.PaymentPending:
		return session.AgentPayment
	}
	return ""
}

func nothingToTrack(s *session.Session) (Decision, bool) {
	to := untracked(s.Stage)
	if to == "" {
		return Decision{}, false
	}
	reply := "There's nothing to track yet because your order hasn't been placed."
	if to == session.AgentOrdering {
		reply += " " + Handoff(session.AgentOrdering)
	}
	return Decision{Reply: reply, Next: to}, true
}

func (*Tracking) Introduce(_ context.Context, s *session.Session, _ *tools.Toolbox) (Decision, error) {
	if d, ok := nothingToTrack(s); ok {
		return d, nil
	}
	return stay("You can ask me for a status update any time.")
}

func (t *Tracking) DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error) {
	if d, ok := nothingToTrack(s); ok {
		return d, nil
	}
	if s.Stage == stage.Delivered {
		return Decision{Next: session.AgentPostDelivery}, nil
	}
	if !isStatusRequest(utterance) {
		return stay("Your order is " + describeStage(s) + ". Ask me for a status update whenever you like.")
	}
	st, err := tools.Exec[stage.Stage](ctx, tb, tools.AdvanceTrackingArgs{})
	if errors.Is(err, tools.ErrInvalidStage) {
		return stay("Your order is " + describeStage(s) + ".")
	}
	if err != nil {
		return Decision{}, err
	}
	if st != stage.Delivered {
		return stay(trackingUpdate(s))
	}
	if _, err := tools.Exec[bool](ctx, tb, tools.SendSMSArgs{Body: "Your order has been delivered. Enjoy your meal!"}); err != nil && !errors.Is(err, tools.ErrUnknownTool) {
		log.Printf("[%s] delivery sms failed: %v", s.ID, err)
	}
	return Decision{Reply: "Your order has been delivered. Enjoy your meal!", Next: session.AgentPostDelivery}, nil
}

func driverName(s *session.Session) string {
	if s.Driver != nil {
		return s.Driver.Name
	}
	return "Your driver"
}

func trackingUpdate(s *session.Session) string {
	switch s.Stage {
	case stage.Preparing:
		return "The restaurant is preparing your food now."
	case stage.PickedUp:
		return driverName(s) + " has picked up your order."
	case stage.OnTheWay:
		return "Your order is on the way."
	case stage.AlmostThere:
		return driverName(s) + " is almost there, about two minutes away."
	}
	return "Your order is " + describeStage(s) + "."
}

func describeStage(s *session.Session) string {
	switch s.Stage {
	case stage.DriverAssigned:
		return "assigned to " + driverName(s)
	case stage.Preparing:
		return "being prepared"
	case stage.PickedUp:
		return "picked up"
	case stage.OnTheWay:
		return "on the way"
	case stage.AlmostThere:
		return "almost there"
	case stage.Delivered:
		return "delivered"
	case stage.Cancelled:
		return "cancelled"
	case stage.Completed:
		return "complete"
	}
	return "being processed"
}
