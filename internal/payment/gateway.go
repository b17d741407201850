package payment

import "context"

const StatusApproved = "approved"

type PreferenceItem struct {
	Title          string
	UnitPriceCents int
	Quantity       int
}

type BackURLs struct {
	Success string
	Failure string
	Pending string
}

type PreferenceRequest struct {
	Items             []PreferenceItem
	BackURLs          BackURLs
	NotificationURL   string
	ExternalReference string
}

type Payer struct {
	ID    string
	Email string
}

// Payment is the gateway's authoritative view of one payment. Webhook
// payloads are never trusted; this is always re-fetched by id.
type Payment struct {
	ID                string
	Status            string
	AmountCents       int
	ExternalReference string
	Payer             Payer
}

type Gateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (preferenceID string, err error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
}
