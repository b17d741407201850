package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const mercadoPagoAPI = "https://api.mercadopago.com"

// MercadoPago is a thin REST client for the two gateway calls this system
// makes: preference creation and payment re-verification.
type MercadoPago struct {
	AccessToken string
	BaseURL     string
	HTTP        *http.Client
}

func NewMercadoPago(accessToken string) *MercadoPago {
	return &MercadoPago{
		AccessToken: accessToken,
		BaseURL:     mercadoPagoAPI,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
	}
}

type mpPreferenceItem struct {
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type mpBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type mpPreference struct {
	Items             []mpPreferenceItem `json:"items"`
	BackURLs          mpBackURLs         `json:"back_urls"`
	AutoReturn        string             `json:"auto_return"`
	NotificationURL   string             `json:"notification_url"`
	ExternalReference string             `json:"external_reference"`
}

func (c *MercadoPago) CreatePreference(ctx context.Context, req PreferenceRequest) (string, error) {
	body := mpPreference{
		BackURLs: mpBackURLs{
			Success: req.BackURLs.Success,
			Failure: req.BackURLs.Failure,
			Pending: req.BackURLs.Pending,
		},
		AutoReturn:        StatusApproved,
		NotificationURL:   req.NotificationURL,
		ExternalReference: req.ExternalReference,
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, mpPreferenceItem{
			Title:     it.Title,
			UnitPrice: float64(it.UnitPriceCents) / 100,
			Quantity:  it.Quantity,
		})
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", body, &resp); err != nil {
		return "", errors.Wrap(err, "create preference")
	}
	return resp.ID, nil
}

func (c *MercadoPago) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var resp struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		TransactionAmount float64     `json:"transaction_amount"`
		ExternalReference string      `json:"external_reference"`
		Payer             struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"payer"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+id, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	return &Payment{
		ID:                resp.ID.String(),
		Status:            resp.Status,
		AmountCents:       int(math.Round(resp.TransactionAmount * 100)),
		ExternalReference: resp.ExternalReference,
		Payer:             Payer{ID: resp.Payer.ID, Email: resp.Payer.Email},
	}, nil
}

func (c *MercadoPago) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway responded %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
