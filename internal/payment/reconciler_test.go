package payment_test

import (
	"context"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendabot/vendabot/internal/cart"
	"github.com/vendabot/vendabot/internal/payment"
	"github.com/vendabot/vendabot/internal/session"
	"github.com/vendabot/vendabot/internal/transport"
)

type fakeGateway struct {
	payment payment.Payment
	err     error
	calls   int
}

func (f *fakeGateway) CreatePreference(context.Context, payment.PreferenceRequest) (string, error) {
	return "", nil
}

func (f *fakeGateway) GetPayment(_ context.Context, id string) (*payment.Payment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := f.payment
	return &p, nil
}

type fakeFinalizer struct {
	order *cart.FinalizedOrder
	err   error
	calls int
	info  cart.FinalizeInfo
}

func (f *fakeFinalizer) Finalize(_ context.Context, userID string, info cart.FinalizeInfo) (*cart.FinalizedOrder, error) {
	f.calls++
	f.info = info
	if f.err != nil {
		return nil, f.err
	}
	out := *f.order
	out.UserID = userID
	out.PayerEmail = info.PayerEmail
	out.ShippingAddress = info.ShippingAddress
	return &out, nil
}

type fakeUserStore struct {
	user   *session.User
	emails []string
}

func (f *fakeUserStore) GetByPhone(_ context.Context, phone string) (*session.User, error) {
	if f.user == nil {
		return nil, session.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeUserStore) SetEmailIfEmpty(_ context.Context, phone, email string) error {
	f.emails = append(f.emails, email)
	return nil
}

type fakePaymentSender struct {
	sent []transport.Message
}

func (f *fakePaymentSender) Send(_ context.Context, to string, msg transport.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakePublisher struct {
	keys    [][]byte
	values  [][]byte
	headers [][]kafkago.Header
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
	f.headers = append(f.headers, headers)
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateCache(context.Context) {
	f.calls++
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func approvedPayment() payment.Payment {
	return payment.Payment{
		ID:                "pay-77",
		Status:            payment.StatusApproved,
		AmountCents:       11980,
		ExternalReference: "5511999990000",
		Payer:             payment.Payer{ID: "payer-1", Email: "ana@example.com"},
	}
}

func TestReconcileApprovedFinalizesOnce(t *testing.T) {
	gw := &fakeGateway{payment: approvedPayment()}
	fin := &fakeFinalizer{order: &cart.FinalizedOrder{
		OrderID:    "ord-1",
		Items:      []cart.Item{{ProductID: 3, Title: "Camiseta Preta", PriceCents: 5990, Quantity: 2}},
		TotalCents: 11980,
	}}
	users := &fakeUserStore{user: &session.User{
		ID: 1, PhoneNumber: "5511999990000", Name: "Ana", Address: "Rua A, 10",
	}}
	sender := &fakePaymentSender{}
	pub := &fakePublisher{}
	inv := &fakeInvalidator{}

	r := &payment.Reconciler{
		Gateway: gw, Ledger: fin, Users: users, Sender: sender,
		Producer: pub, Catalog: inv, Log: quietLog(), Service: "vendabot",
	}

	require.NoError(t, r.Reconcile(context.Background(), "pay-77"))

	assert.Equal(t, 1, gw.calls, "payment is re-fetched from the gateway")
	assert.Equal(t, 1, fin.calls)
	assert.Equal(t, "payer-1", fin.info.PayerID)
	assert.Equal(t, "Rua A, 10", fin.info.ShippingAddress)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Pagamento Aprovado")
	assert.Contains(t, sender.sent[0].Text, "Ana")
	assert.Contains(t, sender.sent[0].Text, "2x Camiseta Preta")
	assert.Contains(t, sender.sent[0].Text, "R$ 119.80")

	require.Len(t, pub.keys, 1)
	assert.Equal(t, []byte("ord-1"), pub.keys[0])
	assert.Contains(t, string(pub.values[0]), `"OrderPaid"`)

	assert.Equal(t, []string{"ana@example.com"}, users.emails)
	assert.Equal(t, 1, inv.calls)
}

func TestReconcileDuplicateDeliveryNoOps(t *testing.T) {
	gw := &fakeGateway{payment: approvedPayment()}
	fin := &fakeFinalizer{err: cart.ErrNoPendingOrder}
	users := &fakeUserStore{user: &session.User{ID: 1, PhoneNumber: "5511999990000"}}
	sender := &fakePaymentSender{}
	pub := &fakePublisher{}

	r := &payment.Reconciler{
		Gateway: gw, Ledger: fin, Users: users, Sender: sender,
		Producer: pub, Log: quietLog(), Service: "vendabot",
	}

	require.NoError(t, r.Reconcile(context.Background(), "pay-77"))
	assert.Empty(t, sender.sent)
	assert.Empty(t, pub.keys)
	assert.Empty(t, users.emails)
}

func TestReconcileIgnoresUnapprovedStatus(t *testing.T) {
	p := approvedPayment()
	p.Status = "pending"
	gw := &fakeGateway{payment: p}
	fin := &fakeFinalizer{order: &cart.FinalizedOrder{OrderID: "ord-1"}}

	r := &payment.Reconciler{Gateway: gw, Ledger: fin, Log: quietLog()}

	require.NoError(t, r.Reconcile(context.Background(), "pay-77"))
	assert.Zero(t, fin.calls)
}

func TestReconcileUnknownUserDiscards(t *testing.T) {
	gw := &fakeGateway{payment: approvedPayment()}
	fin := &fakeFinalizer{order: &cart.FinalizedOrder{OrderID: "ord-1"}}
	users := &fakeUserStore{}
	sender := &fakePaymentSender{}

	r := &payment.Reconciler{
		Gateway: gw, Ledger: fin, Users: users, Sender: sender, Log: quietLog(),
	}

	require.NoError(t, r.Reconcile(context.Background(), "pay-77"))
	assert.Zero(t, fin.calls)
	assert.Empty(t, sender.sent)
}

func TestReconcilePayerIDFallsBackToPaymentID(t *testing.T) {
	p := approvedPayment()
	p.Payer.ID = ""
	gw := &fakeGateway{payment: p}
	fin := &fakeFinalizer{order: &cart.FinalizedOrder{OrderID: "ord-1"}}
	users := &fakeUserStore{user: &session.User{ID: 1, PhoneNumber: "5511999990000"}}

	r := &payment.Reconciler{
		Gateway: gw, Ledger: fin, Users: users, Sender: &fakePaymentSender{}, Log: quietLog(),
	}

	require.NoError(t, r.Reconcile(context.Background(), "pay-77"))
	assert.Equal(t, "pay-77", fin.info.PayerID)
}
