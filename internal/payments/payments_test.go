package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"shop-service/internal/orders"
	"shop-service/internal/stores/kafka"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

func pendingOrder() orders.Order {
	return orders.Order{
		ID:          123,
		OrderNumber: "ORD-000123",
		UserID:      7,
		Contact:     orders.Contact{Email: "ada@example.com"},
		OrderTotal:  decimal.RequireFromString("2199.978"),
		Status:      orders.StatusPending,
		Items: []orders.LineItem{
			{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("999.99")},
		},
	}
}

func TestAmountInMinorUnits(t *testing.T) {
	assert.Equal(t, int64(219998), AmountInMinorUnits(decimal.RequireFromString("2199.978")))
	assert.Equal(t, int64(1000), AmountInMinorUnits(decimal.RequireFromString("10")))
	assert.Equal(t, int64(1), AmountInMinorUnits(decimal.RequireFromString("0.005")))
}

func TestCreateCheckout(t *testing.T) {
	var got *stripe.CheckoutSessionParams
	g := newStripeGateway(StripeConfig{SuccessURL: "https://s", CancelURL: "https://c"}, func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout"}, nil
	})

	co, err := g.CreateCheckout(context.Background(), pendingOrder())
	require.NoError(t, err)
	assert.Equal(t, Checkout{SessionID: "cs_1", URL: "https://checkout"}, co)

	require.NotNil(t, got)
	assert.Equal(t, "123", got.PaymentIntentData.Metadata["order_id"])
	assert.Equal(t, int64(219998), *got.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *got.LineItems[0].PriceData.Currency)
}

func TestCreateCheckout_NotPending(t *testing.T) {
	g := newStripeGateway(StripeConfig{}, func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		t.Fatal("stripe must not be called")
		return nil, nil
	})
	o := pendingOrder()
	o.Status = orders.StatusProcessed

	_, err := g.CreateCheckout(context.Background(), o)
	assert.ErrorIs(t, err, ErrNotPayable)
}

func TestCreateCheckout_BreakerOpens(t *testing.T) {
	calls := 0
	g := newStripeGateway(StripeConfig{}, func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		calls++
		return nil, errors.New("stripe down")
	})

	for i := 0; i < 3; i++ {
		_, err := g.CreateCheckout(context.Background(), pendingOrder())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrGatewayUnavailable)
	}
	_, err := g.CreateCheckout(context.Background(), pendingOrder())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, 3, calls)
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway(StripeConfig{})
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
}

type mockPayer struct {
	calls    int
	recorded bool
	err      error
	payment  orders.Payment
}

func (m *mockPayer) MarkPaid(_ context.Context, orderID int64, p orders.Payment) (orders.Order, bool, error) {
	m.calls++
	m.payment = p
	if m.err != nil {
		return orders.Order{}, false, m.err
	}
	o := pendingOrder()
	o.ID = orderID
	o.Status = orders.StatusProcessed
	return o, m.recorded, nil
}

type message struct {
	topic      string
	key, value []byte
}

type mockPublisher struct {
	messages []message
}

func (m *mockPublisher) ProduceMessage(_ context.Context, topic string, key, value []byte) error {
	m.messages = append(m.messages, message{topic: topic, key: key, value: value})
	return nil
}

func paymentEvent(t *testing.T, eventType string, metadata map[string]string) []byte {
	t.Helper()
	pi, err := json.Marshal(map[string]any{
		"id":                   "pi_123",
		"object":               "payment_intent",
		"amount_received":      219998,
		"status":               "succeeded",
		"payment_method_types": []string{"card"},
		"metadata":             metadata,
	})
	require.NoError(t, err)
	ev, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]json.RawMessage{"object": pi},
	})
	require.NoError(t, err)
	return ev
}

const testSecret = "whsec_test"

// handleSigned delivers payload with a valid Stripe-Signature header for testSecret.
func handleSigned(p *Processor, payload []byte) (Result, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return p.Handle(context.Background(), signed.Payload, signed.Header)
}

func TestNewProcessor_RequiresSecret(t *testing.T) {
	_, err := NewProcessor(&mockPayer{}, nil, "")
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)

	_, err = NewProcessor(nil, nil, testSecret)
	assert.Error(t, err)
}

func TestHandle_RejectsUnsignedEvents(t *testing.T) {
	payer := &mockPayer{recorded: true}
	p, err := NewProcessor(payer, nil, testSecret)
	require.NoError(t, err)

	_, err = p.Handle(context.Background(), paymentEvent(t, eventPaymentSucceeded, map[string]string{"order_id": "123"}), "")
	assert.ErrorIs(t, err, ErrBadEvent)
	assert.Zero(t, payer.calls)
}

func TestHandle_PaymentSucceeded(t *testing.T) {
	payer := &mockPayer{recorded: true}
	pub := &mockPublisher{}
	p, err := NewProcessor(payer, pub, testSecret)
	require.NoError(t, err)

	res, err := handleSigned(p, paymentEvent(t, eventPaymentSucceeded, map[string]string{"order_id": "123"}))
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, orders.StatusProcessed, res.Order.Status)

	assert.Equal(t, "pi_123", payer.payment.PaymentID)
	assert.Equal(t, "card", payer.payment.Method)
	assert.Equal(t, "2199.98", payer.payment.AmountPaid.String())

	require.Len(t, pub.messages, 1)
	assert.Equal(t, kafka.TopicOrderPaid, pub.messages[0].topic)
	assert.Equal(t, "ORD-000123", string(pub.messages[0].key))
	var ev kafka.OrderPaidEvent
	require.NoError(t, json.Unmarshal(pub.messages[0].value, &ev))
	assert.Equal(t, int64(1), ev.ProductID)
	assert.Equal(t, 2, ev.Quantity)
	assert.Equal(t, "999.99", ev.UnitPrice)
}

func TestHandle_DuplicateDeliveryPublishesOnce(t *testing.T) {
	payer := &mockPayer{recorded: false}
	pub := &mockPublisher{}
	p, err := NewProcessor(payer, pub, testSecret)
	require.NoError(t, err)

	_, err = handleSigned(p, paymentEvent(t, eventPaymentSucceeded, map[string]string{"order_id": "123"}))
	require.NoError(t, err)
	assert.Empty(t, pub.messages)
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		payer   *mockPayer
		wantErr error
	}{
		{"not json", []byte("{"), &mockPayer{}, ErrBadEvent},
		{"missing order id", paymentEvent(t, eventPaymentSucceeded, nil), &mockPayer{}, ErrBadEvent},
		{"unknown order", paymentEvent(t, eventPaymentSucceeded, map[string]string{"order_id": "9"}), &mockPayer{err: orders.ErrNotFound}, orders.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProcessor(tt.payer, nil, testSecret)
			require.NoError(t, err)
			_, err = handleSigned(p, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandle_IgnoresOtherEvents(t *testing.T) {
	payer := &mockPayer{}
	p, err := NewProcessor(payer, nil, testSecret)
	require.NoError(t, err)

	res, err := handleSigned(p, paymentEvent(t, "charge.refunded", nil))
	require.NoError(t, err)
	assert.False(t, res.Handled)
	assert.Zero(t, payer.calls)
}

func TestHandle_VerifiesSignature(t *testing.T) {
	payer := &mockPayer{recorded: true}
	p, err := NewProcessor(payer, nil, testSecret)
	require.NoError(t, err)

	payload := paymentEvent(t, eventPaymentSucceeded, map[string]string{"order_id": "123"})
	_, err = handleSigned(p, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, payer.calls)

	_, err = p.Handle(context.Background(), payload, fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	assert.ErrorIs(t, err, ErrBadEvent)
	assert.Equal(t, 1, payer.calls)
}
