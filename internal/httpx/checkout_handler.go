package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/vendabot/vendabot/internal/cart"
	"github.com/vendabot/vendabot/internal/catalog"
	"github.com/vendabot/vendabot/internal/payment"
	"github.com/vendabot/vendabot/internal/session"
)

type CheckoutUsers interface {
	GetByPhone(ctx context.Context, phone string) (*session.User, error)
	UpdateCustomerInfo(ctx context.Context, phone string, name, address *string) error
}

type CheckoutLedger interface {
	GetCart(ctx context.Context, userID string) ([]cart.Item, error)
}

type CatalogSource interface {
	List(ctx context.Context) ([]catalog.Product, error)
}

// CheckoutHandler serves the checkout page's single action-dispatch
// endpoint and the payment gateway's webhook.
type CheckoutHandler struct {
	Users      CheckoutUsers
	Ledger     CheckoutLedger
	Catalog    CatalogSource
	Gateway    payment.Gateway
	Reconciler *payment.Reconciler
	Log        *logrus.Logger
	BaseURL    string
	PublicKey  string
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Post("/webhook/mercadopago", h.webhook)
}

type checkoutReq struct {
	Action  string  `json:"action"`
	UserID  string  `json:"userId"`
	Amount  float64 `json:"amount"`
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": msg})
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	switch req.Action {
	case "getCheckoutInformation":
		h.getCheckoutInformation(ctx, w, req)
	case "createPreference":
		h.createPreference(ctx, w, req)
	case "updateCustomerInfo":
		h.updateCustomerInfo(ctx, w, req)
	default:
		fail(w, "Ação inválida")
	}
}

func (h *CheckoutHandler) getCheckoutInformation(ctx context.Context, w http.ResponseWriter, req checkoutReq) {
	user, err := h.Users.GetByPhone(ctx, session.Digits(req.UserID))
	if err != nil {
		fail(w, "Usuário não encontrado")
		return
	}

	items, err := h.Ledger.GetCart(ctx, user.PhoneNumber)
	if err != nil || len(items) == 0 {
		fail(w, "Carrinho vazio")
		return
	}

	products, err := h.Catalog.List(ctx)
	if err != nil {
		h.Log.WithError(err).Error("catalog read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	byID := make(map[int64]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	type lineOut struct {
		Product  catalog.Product `json:"product"`
		Quantity int             `json:"quantity"`
	}
	out := make([]lineOut, 0, len(items))
	for _, it := range items {
		out = append(out, lineOut{Product: byID[it.ProductID], Quantity: it.Quantity})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"cartItems": out,
		"name":      user.Name,
		"address":   user.Address,
	})
}

func (h *CheckoutHandler) createPreference(ctx context.Context, w http.ResponseWriter, req checkoutReq) {
	prefID, err := h.Gateway.CreatePreference(ctx, payment.PreferenceRequest{
		Items: []payment.PreferenceItem{{
			Title:          "Pedido - Loja Online",
			UnitPriceCents: int(req.Amount*100 + 0.5),
			Quantity:       1,
		}},
		BackURLs: payment.BackURLs{
			Success: h.BaseURL + "/payment-success.html",
			Failure: h.BaseURL + "/payment-failure.html",
			Pending: h.BaseURL + "/payment-pending.html",
		},
		NotificationURL:   h.BaseURL + "/webhook/mercadopago",
		ExternalReference: req.UserID,
	})
	if err != nil {
		h.Log.WithError(err).Error("create preference failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"preferenceId": prefID,
		"publicKey":    h.PublicKey,
	})
}

func (h *CheckoutHandler) updateCustomerInfo(ctx context.Context, w http.ResponseWriter, req checkoutReq) {
	phone := session.Digits(req.UserID)
	if _, err := h.Users.GetByPhone(ctx, phone); err != nil {
		fail(w, "Usuário não encontrado")
		return
	}
	if err := h.Users.UpdateCustomerInfo(ctx, phone, req.Name, req.Address); err != nil {
		h.Log.WithError(err).Error("update customer info failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type webhookReq struct {
	Type string `json:"type"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// webhook acknowledges the gateway immediately and reconciles afterwards on
// a detached context; a slow finalize must not eat the gateway's retry
// budget, and reconciliation failures are logged, never surfaced.
func (h *CheckoutHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))

	if req.Type != "payment" || req.Data.ID.String() == "" {
		return
	}
	paymentID := req.Data.ID.String()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.Reconciler.Reconcile(ctx, paymentID); err != nil {
			h.Log.WithError(err).WithField("payment_id", paymentID).Error("reconciliation failed")
		}
	}()
}
