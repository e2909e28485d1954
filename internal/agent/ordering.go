package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chadiek/voice-order/internal/order"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/tools"
)

var orderingRules = []rule{
	{to: session.AgentSupport, keywords: []string{
		"cancel", "refund", "complaint", "problem with", "issue",
		"wrong order", "missing", "not happy", "angry", "frustrated",
	}},
	{to: session.AgentTracking, keywords: []string{
		"where is my order", "track my order", "status", "delivery time",
		"when will it arrive", "driver location",
	}},
}

// Ordering takes the caller's food order item by item.
type Ordering struct{}

func (*Ordering) Name() session.AgentName { return session.AgentOrdering }

func (*Ordering) ComposePrompt(s *session.Session) string {
	return composePrompt("You are a friendly food ordering assistant. Help the caller pick items from the menu, "+
		"confirm quantities and customizations, and move to delivery details once they are done.", s)
}

func (*Ordering) ShouldTransfer(s *session.Session) session.AgentName {
	return firstMatch(s.LastUserUtterance(), orderingRules)
}

func (o *Ordering) Introduce(_ context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	if len(s.Items) > 0 {
		return stay(fmt.Sprintf("You have %s so far. What else would you like?", describeItems(s.Items)))
	}
	return stay("Thanks for calling! What would you like to order today? We have " + categoryList(tb.Menu()) + ".")
}

func (o *Ordering) DecideReply(ctx context.Context, s *session.Session, utterance string, tb *tools.Toolbox) (Decision, error) {
	menu := tb.Menu()
	u := strings.ToLower(utterance)

	if strings.Contains(u, "remove") || strings.Contains(u, "take off") {
		return o.remove(ctx, s, u, tb)
	}

	category := menu.CategoryIn(u)
	if category == "" {
		category = s.PendingCategory
	}
	matches := menu.Match(u, "")
	if len(matches) > 1 && category != "" {
		if narrowed := menu.Match(u, category); len(narrowed) > 0 {
			matches = narrowed
		}
	}

	switch {
	case len(matches) == 1:
		return o.add(ctx, s, matches[0], parseQuantity(u), tb)
	case len(matches) > 1:
		names := make([]string, len(matches))
		for i, it := range matches {
			names[i] = it.Name
		}
		return stay("Did you mean " + joinOr(names) + "?")
	}

	if IsCheckout(u) {
		return o.checkout(ctx, s, tb)
	}
	if category != "" {
		s.PendingCategory = category
		var names []string
		for _, it := range menu.InCategory(category) {
			if it.Available {
				names = append(names, fmt.Sprintf("%s for %s", it.Name, order.Money(it.Price)))
			}
		}
		return stay(fmt.Sprintf("Our %s options are %s. Which one would you like?", category, joinAnd(names)))
	}
	if strings.Contains(u, "menu") || strings.Contains(u, "what do you have") {
		return stay("We have " + categoryList(menu) + ". Which sounds good?")
	}
	if len(s.Items) > 0 {
		return stay("Sorry, I didn't catch that. Would you like anything else, or is that all?")
	}
	return stay("Sorry, I didn't catch that. We have " + categoryList(menu) + ". What would you like?")
}

func (o *Ordering) add(ctx context.Context, s *session.Session, it order.Item, qty int, tb *tools.Toolbox) (Decision, error) {
	li, err := tools.Exec[order.LineItem](ctx, tb, tools.AddToOrderArgs{ProductID: it.ID, Quantity: qty})
	switch {
	case errors.Is(err, tools.ErrItemUnavailable):
		return stay(fmt.Sprintf("Sorry, the %s is sold out today. Can I get you something else?", it.Name))
	case errors.Is(err, tools.ErrOrderLocked):
		return stay("Your order is already being processed, so I can't add to it.")
	case err != nil:
		return Decision{}, err
	}
	s.PendingCategory = ""
	return stay(fmt.Sprintf("Added %d %s. Anything else?", li.Quantity, li.Name))
}

func (o *Ordering) remove(ctx context.Context, s *session.Session, u string, tb *tools.Toolbox) (Decision, error) {
	for _, it := range tb.Menu().Match(u, "") {
		li, err := tools.Exec[order.LineItem](ctx, tb, tools.RemoveFromOrderArgs{ProductID: it.ID})
		if errors.Is(err, tools.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return Decision{}, err
		}
		if len(s.Items) == 0 {
			return stay(fmt.Sprintf("I've removed the %s. Your order is empty now. What would you like?", li.Name))
		}
		return stay(fmt.Sprintf("I've removed the %s. Anything else?", li.Name))
	}
	if len(s.Items) == 0 {
		return stay("There's nothing in your order yet. What would you like?")
	}
	return stay(fmt.Sprintf("I couldn't find that in your order. You have %s.", describeItems(s.Items)))
}

func (o *Ordering) checkout(ctx context.Context, s *session.Session, tb *tools.Toolbox) (Decision, error) {
	t, err := tools.Exec[order.Totals](ctx, tb, tools.CheckoutArgs{})
	if errors.Is(err, tools.ErrEmptyOrder) {
		return stay("Your order is empty. What would you like to order?")
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Reply: fmt.Sprintf("Great, that's %s for a subtotal of %s.", describeItems(s.Items), order.Money(t.Subtotal)),
		Next:  session.AgentAddress,
	}, nil
}

func describeItems(items []order.LineItem) string {
	parts := make([]string, len(items))
	for i, li := range items {
		parts[i] = fmt.Sprintf("%d %s", li.Quantity, li.Name)
	}
	return joinAnd(parts)
}

func categoryList(m *order.Menu) string {
	cats := m.Categories()
	for i, c := range cats {
		if !strings.HasSuffix(c, "a") && !strings.HasSuffix(c, "i") {
			cats[i] = c + "s"
		}
	}
	return joinAnd(cats)
}

func joinAnd(parts []string) string { return joinWith(parts, "and") }
func joinOr(parts []string) string  { return joinWith(parts, "or") }

func joinWith(parts []string, conj string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " " + conj + " " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", " + conj + " " + parts[len(parts)-1]
}
