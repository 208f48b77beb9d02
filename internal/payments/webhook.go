package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"shop-service/internal/orders"
	"shop-service/internal/stores/kafka"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

var ErrBadEvent = errors.New("malformed payment event")

const eventPaymentSucceeded = "payment_intent.succeeded"

type OrderPayer interface {
	MarkPaid(ctx context.Context, orderID int64, p orders.Payment) (orders.Order, bool, error)
}

type Publisher interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// Processor applies Stripe webhook events to orders.
type Processor struct {
	orders    OrderPayer
	publisher Publisher
	secret    string
}

// NewProcessor builds a Processor. Events are only accepted when signed with
// secret; publisher may be nil to skip event publication.
func NewProcessor(o OrderPayer, publisher Publisher, secret string) (*Processor, error) {
	if o == nil {
		return nil, errors.New("order store is nil")
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is empty", ErrGatewayNotConfigured)
	}
	return &Processor{orders: o, publisher: publisher, secret: secret}, nil
}

// Result describes what an event did.
type Result struct {
	Handled bool
	Order   orders.Order
}

func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	event, err := p.parse(payload, signature)
	if err != nil {
		return Result{}, err
	}

	switch string(event.Type) {
	case eventPaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrBadEvent, err)
		}
		o, err := p.paymentSucceeded(ctx, &pi)
		if err != nil {
			return Result{}, err
		}
		return Result{Handled: true, Order: o}, nil
	default:
		slog.Info("unhandled payment event", slog.String("event_type", string(event.Type)))
		return Result{}, nil
	}
}

func (p *Processor) parse(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", ErrBadEvent, err)
	}
	return event, nil
}

func (p *Processor) paymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) (orders.Order, error) {
	orderID, err := strconv.ParseInt(pi.Metadata["order_id"], 10, 64)
	if err != nil {
		return orders.Order{}, fmt.Errorf("%w: missing order_id metadata on %s", ErrBadEvent, pi.ID)
	}

	payment := orders.Payment{
		PaymentID:  pi.ID,
		Method:     strings.Join(pi.PaymentMethodTypes, ","),
		AmountPaid: decimal.New(pi.AmountReceived, -2),
		Status:     string(pi.Status),
	}
	if payment.Method == "" {
		payment.Method = "card"
	}

	o, recorded, err := p.orders.MarkPaid(ctx, orderID, payment)
	if err != nil {
		return orders.Order{}, fmt.Errorf("failed to mark order %d paid: %w", orderID, err)
	}
	if !recorded {
		slog.Info("payment already recorded", slog.String("payment_id", pi.ID), slog.Int64("order_id", orderID))
		return o, nil
	}
	slog.Info("order paid", slog.String("order_number", o.OrderNumber), slog.String("payment_id", pi.ID))

	p.publishPaid(ctx, o)
	return o, nil
}

// publishPaid emits one event per line item. Failures are logged; the
// payment itself is already committed.
func (p *Processor) publishPaid(ctx context.Context, o orders.Order) {
	if p.publisher == nil {
		return
	}
	key := []byte(o.OrderNumber)
	for _, it := range o.Items {
		data, err := json.Marshal(kafka.OrderPaidEvent{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			UserID:      o.UserID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price.String(),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			slog.Error("failed to marshal OrderPaidEvent", slog.String("error", err.Error()))
			continue
		}
		if err := p.publisher.ProduceMessage(ctx, kafka.TopicOrderPaid, key, data); err != nil {
			slog.Error("failed to produce message", slog.String("order_number", o.OrderNumber), slog.String("error", err.Error()))
		}
	}
}
