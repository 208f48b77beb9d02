package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"shop-service/internal/auth"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is applied when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.10")

// Tx is the set of writes the builder performs inside one transaction.
type Tx interface {
	// LockProducts returns the rows for ids, locked until the transaction ends.
	// Unknown ids are absent from the result.
	LockProducts(ctx context.Context, ids []int64) (map[int64]ProductSnapshot, error)
	InsertOrder(ctx context.Context, o *Order) (int64, error)
	SetOrderNumber(ctx context.Context, orderID int64, number string) error
	InsertLineItem(ctx context.Context, item *LineItem) (int64, error)
	// DecrementStock returns ErrConflict when fewer than qty units remain.
	DecrementStock(ctx context.Context, productID int64, qty int) error
}

type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

type Builder struct {
	store   Store
	taxRate decimal.Decimal
}

func NewBuilder(store Store, taxRate decimal.Decimal) (*Builder, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if taxRate.IsNegative() {
		return nil, fmt.Errorf("tax rate %s is negative", taxRate)
	}
	return &Builder{store: store, taxRate: taxRate}, nil
}

// Totals holds the amounts derived from a set of priced line items.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums price times quantity and applies rate without rounding.
func ComputeTotals(items []LineItem, rate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	tax := subtotal.Mul(rate)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// Create validates req against locked stock and persists the order, its line
// items and the stock decrements in a single transaction.
func (b *Builder) Create(ctx context.Context, p auth.Principal, req NewOrder) (Order, error) {
	if !p.Can(auth.CapPlaceOrder) {
		return Order{}, ErrUnauthorized
	}
	if len(req.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}

	var invalid []*LineItemError
	requested := make(map[int64]int, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			invalid = append(invalid, &LineItemError{Index: i, ProductID: it.ProductID,
				Err: fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)})
			continue
		}
		requested[it.ProductID] = addQuantity(requested[it.ProductID], it.Quantity)
	}
	if len(invalid) > 0 {
		return Order{}, &ValidationError{Items: invalid}
	}

	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var created Order
	err := b.store.WithTx(ctx, func(tx Tx) error {
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("locking products: %w", err)
		}

		items, err := priceItems(req.Items, requested, products)
		if err != nil {
			return err
		}

		totals := ComputeTotals(items, b.taxRate)
		o := Order{
			UserID:     p.UserID,
			Contact:    req.Contact,
			IP:         req.IP,
			OrderTotal: totals.Total,
			Tax:        totals.Tax,
			Status:     StatusPending,
		}
		o.ID, err = tx.InsertOrder(ctx, &o)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}
		o.OrderNumber = FormatOrderNumber(o.ID)
		if err := tx.SetOrderNumber(ctx, o.ID, o.OrderNumber); err != nil {
			return fmt.Errorf("setting order number: %w", err)
		}

		for i := range items {
			items[i].OrderID = o.ID
			items[i].ID, err = tx.InsertLineItem(ctx, &items[i])
			if err != nil {
				return fmt.Errorf("inserting line item %d: %w", i, err)
			}
			if err := tx.DecrementStock(ctx, items[i].ProductID, items[i].Quantity); err != nil {
				return fmt.Errorf("decrementing stock of product %d: %w", items[i].ProductID, err)
			}
		}
		o.Items = items
		created = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	slog.Info("order created",
		slog.String("order_number", created.OrderNumber),
		slog.Int64("user_id", created.UserID),
		slog.String("order_total", created.OrderTotal.String()))
	return created, nil
}

// addQuantity sums two positive quantities, saturating at math.MaxInt so an
// overflowing total still exceeds any stock level.
func addQuantity(total, qty int) int {
	if qty > math.MaxInt-total {
		return math.MaxInt
	}
	return total + qty
}

// priceItems checks every request entry against the locked products and
// returns the line items priced at their current unit price. All failing
// entries are reported together.
func priceItems(reqs []ItemRequest, requested map[int64]int, products map[int64]ProductSnapshot) ([]LineItem, error) {
	var invalid []*LineItemError
	items := make([]LineItem, 0, len(reqs))
	for i, it := range reqs {
		prod, ok := products[it.ProductID]
		switch {
		case !ok:
			invalid = append(invalid, &LineItemError{Index: i, ProductID: it.ProductID,
				Err: fmt.Errorf("%w: product %d does not exist", ErrNotFound, it.ProductID)})
			continue
		case !prod.IsAvailable && requested[it.ProductID] > prod.Stock:
			// sold out: both kinds apply
			invalid = append(invalid, &LineItemError{Index: i, ProductID: it.ProductID,
				Err: fmt.Errorf("%w: %w: %q has %d in stock", ErrUnavailable, ErrInsufficientStock, prod.Name, prod.Stock)})
			continue
		case !prod.IsAvailable:
			invalid = append(invalid, &LineItemError{Index: i, ProductID: it.ProductID,
				Err: fmt.Errorf("%w: %q is not available", ErrUnavailable, prod.Name)})
			continue
		case requested[it.ProductID] > prod.Stock:
			invalid = append(invalid, &LineItemError{Index: i, ProductID: it.ProductID,
				Err: fmt.Errorf("%w: %q has %d in stock, %d requested", ErrInsufficientStock, prod.Name, prod.Stock, requested[it.ProductID])})
			continue
		}
		items = append(items, LineItem{
			ProductID:   prod.ID,
			ProductName: prod.Name,
			Quantity:    it.Quantity,
			Price:       prod.Price,
		})
	}
	if len(invalid) > 0 {
		return nil, &ValidationError{Items: invalid}
	}
	return items, nil
}
