package cart

import "time"

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
)

// Pending -> Paid is the only legal transition; Paid is terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusPaid: true},
	StatusPaid:    {},
}

func CanTransition(from, to Status) bool { return validNext[from][to] }

type Order struct {
	ID              string
	UserID          string // channel address (phone digits)
	Status          Status
	AmountCents     int
	ShippingAddress string
	PayerID         string
	PayerEmail      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is one cart line joined with its product fields.
type Item struct {
	ProductID  int64  `json:"product_id"`
	Title      string `json:"title"`
	PriceCents int    `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

func (it Item) SubtotalCents() int { return it.PriceCents * it.Quantity }

// Total sums line subtotals; the order amount must always equal this.
func Total(items []Item) int {
	sum := 0
	for _, it := range items {
		sum += it.SubtotalCents()
	}
	return sum
}

// FinalizedOrder is the snapshot handed to the confirmation message and the
// order.paid event after a successful finalize.
type FinalizedOrder struct {
	OrderID         string
	UserID          string
	Items           []Item
	TotalCents      int
	Name            string
	ShippingAddress string
	PayerEmail      string
}
