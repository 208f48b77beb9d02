package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"shop-service/internal/orders"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

var (
	ErrNotPayable           = errors.New("order is not awaiting payment")
	ErrGatewayUnavailable   = errors.New("payment provider unavailable")
	ErrGatewayNotConfigured = errors.New("payment provider is not configured")
)

// Checkout is a hosted payment page for one order.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"checkout_session_url"`
}

type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

// StripeGateway creates Stripe checkout sessions behind a circuit breaker.
type StripeGateway struct {
	cfg    StripeConfig
	create sessionCreator
	cb     *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrGatewayNotConfigured
	}
	stripe.Key = cfg.SecretKey
	return newStripeGateway(cfg, session.New), nil
}

func newStripeGateway(cfg StripeConfig, create sessionCreator) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	cb := gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", slog.String("name", name),
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return &StripeGateway{cfg: cfg, create: create, cb: cb}
}

// AmountInMinorUnits converts a decimal amount to cents, rounding half away from zero.
func AmountInMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreateCheckout opens a checkout session for a pending order.
func (g *StripeGateway) CreateCheckout(ctx context.Context, o orders.Order) (Checkout, error) {
	if o.Status != orders.StatusPending || o.IsOrdered {
		return Checkout{}, fmt.Errorf("%w: %s is %s", ErrNotPayable, o.OrderNumber, o.Status)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SubmitType:        stripe.String("pay"),
		CustomerEmail:     stripe.String(o.Email),
		ClientReferenceID: stripe.String(o.OrderNumber),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.cfg.Currency),
					UnitAmount: stripe.Int64(AmountInMinorUnits(o.OrderTotal)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + o.OrderNumber),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id":     strconv.FormatInt(o.ID, 10),
				"order_number": o.OrderNumber,
				"user_id":      strconv.FormatInt(o.UserID, 10),
			},
		},
	}
	params.Context = ctx

	s, err := g.cb.Execute(func() (*stripe.CheckoutSession, error) {
		return g.create(params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Checkout{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	if err != nil {
		return Checkout{}, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return Checkout{SessionID: s.ID, URL: s.URL}, nil
}
