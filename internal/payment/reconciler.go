package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/vendabot/vendabot/internal/cart"
	"github.com/vendabot/vendabot/internal/catalog"
	"github.com/vendabot/vendabot/internal/kafkax"
	"github.com/vendabot/vendabot/internal/session"
	"github.com/vendabot/vendabot/internal/transport"
)

type Finalizer interface {
	Finalize(ctx context.Context, userID string, info cart.FinalizeInfo) (*cart.FinalizedOrder, error)
}

type UserStore interface {
	GetByPhone(ctx context.Context, phone string) (*session.User, error)
	SetEmailIfEmpty(ctx context.Context, phone, email string) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// Reconciler turns a payment notification into a finalized order. It is
// idempotent by construction: finalization consumes the pending order, so a
// redelivered notification finds nothing pending and no-ops.
type Reconciler struct {
	Gateway  Gateway
	Ledger   Finalizer
	Users    UserStore
	Sender   transport.Sender
	Producer Publisher
	Catalog  CacheInvalidator
	Log      *logrus.Logger
	Service  string
}

// Reconcile re-verifies the payment with the gateway and, when approved,
// finalizes the payer's pending order, decrements stock, sends exactly one
// confirmation and publishes an order.paid event. The correlation token is
// trusted as the user identity after the gateway re-fetch; there is no
// independent signature check (known gap, inherited deliberately).
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) error {
	p, err := r.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status != StatusApproved {
		return nil
	}

	phone := session.Digits(p.ExternalReference)
	log := r.Log.WithFields(logrus.Fields{"payment_id": paymentID, "user_id": phone})

	user, err := r.Users.GetByPhone(ctx, phone)
	if err != nil {
		if err == session.ErrUserNotFound {
			log.Warn("approved payment for unknown user, discarding")
			return nil
		}
		return err
	}

	payerID := p.Payer.ID
	if payerID == "" {
		payerID = p.ID
	}
	fin, err := r.Ledger.Finalize(ctx, phone, cart.FinalizeInfo{
		PayerID:         payerID,
		PayerEmail:      p.Payer.Email,
		AmountCents:     p.AmountCents,
		ShippingAddress: user.Address,
	})
	if err != nil {
		if err == cart.ErrNoPendingOrder {
			// Already finalized: stale or duplicate delivery.
			log.Info("no pending order, treating notification as duplicate")
			return nil
		}
		return err
	}
	fin.Name = user.Name

	if p.Payer.Email != "" && user.Email == "" {
		if err := r.Users.SetEmailIfEmpty(ctx, phone, p.Payer.Email); err != nil {
			log.WithError(err).Error("persist payer email failed")
		}
	}

	if r.Catalog != nil {
		r.Catalog.InvalidateCache(ctx)
	}

	if err := r.Sender.Send(ctx, user.PhoneNumber, transport.Message{Text: confirmationText(fin)}); err != nil {
		log.WithError(err).Error("confirmation send failed")
	}
	r.publishOrderPaid(fin)

	log.WithField("order_id", fin.OrderID).Info("order finalized")
	return nil
}

func (r *Reconciler) publishOrderPaid(fin *cart.FinalizedOrder) {
	if r.Producer == nil {
		return
	}
	ev := cart.Envelope{
		EventID:       uuid.NewString(),
		EventType:     cart.EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.Service,
		CorrelationID: fin.OrderID,
		Payload: kafkax.MustMarshal(cart.OrderPaidPayload{
			OrderID:    fin.OrderID,
			UserID:     fin.UserID,
			Items:      fin.Items,
			TotalCents: fin.TotalCents,
			PayerEmail: fin.PayerEmail,
		}),
	}
	r.Producer.Publish(cart.PartitionKey(fin.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(cart.EventOrderPaid)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func confirmationText(fin *cart.FinalizedOrder) string {
	var items strings.Builder
	for _, it := range fin.Items {
		fmt.Fprintf(&items, "\n• %dx %s - %s", it.Quantity, it.Title, catalog.BRL(it.SubtotalCents()))
	}
	name := fin.Name
	if name == "" {
		name = "Não informado"
	}
	address := fin.ShippingAddress
	if address == "" {
		address = "Não informado"
	}
	return fmt.Sprintf("🎉 *Pagamento Aprovado!*\n\nSeu pagamento foi confirmado com sucesso!\n\n"+
		"📋 *Dados do Pedido:*\n✅ Pedido: #%s\n👤 Nome: %s\n📍 Endereço: %s\n\n"+
		"🛒 *Itens:*%s\n\n💰 *Total: %s*\n\n"+
		"Obrigado pela sua compra! Em breve você receberá mais informações sobre a entrega.",
		fin.OrderID, name, address, items.String(), catalog.BRL(fin.TotalCents))
}
