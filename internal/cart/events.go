package cart

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPaid = "OrderPaid"

	TopicOrderPaid = "order.paid"
)

// Envelope is the versioned event wrapper published to kafka.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPaidPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	Items      []Item `json:"items"`
	TotalCents int    `json:"total_cents"`
	PayerEmail string `json:"payer_email,omitempty"`
}

// Partition key = order_id so events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
