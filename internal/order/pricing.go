package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOrder      = errors.New("order has no items")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// LineItem is one product on an order. Line items are never edited in place;
// a change is a remove followed by an add.
type LineItem struct {
	ProductID      string            `json:"product_id"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	UnitPrice      int64             `json:"unit_price"`
	Customizations map[string]string `json:"customizations,omitempty"`
	Subtotal       int64             `json:"subtotal"`
}

// NewLineItem prices qty units of item.
func NewLineItem(item Item, qty int, customizations map[string]string) (LineItem, error) {
	if qty < 1 {
		return LineItem{}, ErrInvalidQuantity
	}
	var cust map[string]string
	if len(customizations) > 0 {
		cust = make(map[string]string, len(customizations))
		for k, v := range customizations {
			cust[k] = v
		}
	}
	return LineItem{
		ProductID:      item.ID,
		Name:           item.Name,
		Quantity:       qty,
		UnitPrice:      item.Price,
		Customizations: cust,
		Subtotal:       item.Price * int64(qty),
	}, nil
}

// Policy holds the fee and tax rules. Amounts are cents.
type Policy struct {
	DeliveryFee           int64
	FreeDeliveryThreshold int64
	ServiceRate           decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPolicy: $5.00 delivery under $25.00, 10% service fee, 8% tax.
var DefaultPolicy = Policy{
	DeliveryFee:           500,
	FreeDeliveryThreshold: 2500,
	ServiceRate:           decimal.RequireFromString("0.10"),
	TaxRate:               decimal.RequireFromString("0.08"),
}

// Totals is the priced breakdown of an order.
type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	DeliveryFee int64 `json:"delivery_fee"`
	ServiceFee  int64 `json:"service_fee"`
	Tax         int64 `json:"tax"`
	Total       int64 `json:"total"`
}

// Calculate prices items under the default policy.
func Calculate(items []LineItem) (Totals, error) {
	return DefaultPolicy.Calculate(items)
}

// Calculate is a pure function of items. Percentages round half up to the cent.
func (p Policy) Calculate(items []LineItem) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrEmptyOrder
	}
	var t Totals
	for _, li := range items {
		t.Subtotal += li.Subtotal
	}
	if t.Subtotal < p.FreeDeliveryThreshold {
		t.DeliveryFee = p.DeliveryFee
	}
	t.ServiceFee = percentOf(t.Subtotal, p.ServiceRate)
	t.Tax = percentOf(t.Subtotal, p.TaxRate)
	t.Total = t.Subtotal + t.DeliveryFee + t.ServiceFee + t.Tax
	return t, nil
}

func percentOf(cents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}

// Money renders cents for display and speech, e.g. 3420 -> "$34.20".
func Money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s", sign, decimal.New(cents, -2).StringFixed(2))
}
