package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"shop-service/internal/auth"
	"shop-service/internal/orders"
	"shop-service/internal/products"
	"shop-service/internal/stores/postgres/postgrestest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(items ...orders.ItemRequest) orders.NewOrder {
	return orders.NewOrder{
		Contact: orders.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			Phone: "0780000000", District: "Gasabo", Sector: "Remera"},
		Items: items,
		IP:    "127.0.0.1",
	}
}

func TestConf_CreateAndQuery(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	seller := postgrestest.SeedUser(t, db, "seller", auth.RoleSeller)
	buyer := postgrestest.SeedUser(t, db, "buyer", auth.RoleBuyer)
	laptop := postgrestest.SeedProduct(t, db, seller, "Laptop", "999.99", 5, true)

	conf, err := orders.NewConf(db)
	require.NoError(t, err)
	b, err := orders.NewBuilder(conf, orders.DefaultTaxRate)
	require.NoError(t, err)

	o, err := b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: laptop, Quantity: 2}))
	require.NoError(t, err)
	assert.Equal(t, orders.FormatOrderNumber(o.ID), o.OrderNumber)

	got, err := conf.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2199.978").Equal(got.OrderTotal))
	assert.True(t, decimal.RequireFromString("199.998").Equal(got.Tax))
	assert.Equal(t, orders.StatusPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("999.99").Equal(got.Items[0].Price))

	var stock int
	require.NoError(t, db.QueryRow(`SELECT stock FROM products WHERE id = $1`, laptop).Scan(&stock))
	assert.Equal(t, 3, stock)

	_, err = conf.Get(ctx, seller, o.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)

	list, err := conf.ListByUser(ctx, buyer, orders.StatusShipped, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	paid, recorded, err := conf.MarkPaid(ctx, o.ID, orders.Payment{PaymentID: "pi_1", Method: "card", AmountPaid: got.OrderTotal, Status: "succeeded"})
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, orders.StatusProcessed, paid.Status)

	_, recorded, err = conf.MarkPaid(ctx, o.ID, orders.Payment{PaymentID: "pi_1", Method: "card", AmountPaid: got.OrderTotal, Status: "succeeded"})
	require.NoError(t, err)
	assert.False(t, recorded)

	sellerOrders, err := conf.ListForSeller(ctx, seller)
	require.NoError(t, err)
	require.Len(t, sellerOrders, 1)

	ok, err := conf.HasPurchased(ctx, buyer, laptop)
	require.NoError(t, err)
	assert.True(t, ok)

	updated, err := conf.UpdateStatus(ctx, seller, o.ID, orders.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, updated.Status)

	_, err = conf.UpdateStatus(ctx, buyer, o.ID, orders.StatusCompleted)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	stats, err := conf.Stats(ctx, seller, true)
	require.NoError(t, err)
	require.NotNil(t, stats.Seller)
	assert.Equal(t, 1, stats.Seller.OrdersWithMyProducts)
	assert.True(t, decimal.RequireFromString("1999.98").Equal(stats.Seller.TotalRevenue))
}

func TestConf_ValidationFailureWritesNothing(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	seller := postgrestest.SeedUser(t, db, "seller", auth.RoleSeller)
	buyer := postgrestest.SeedUser(t, db, "buyer", auth.RoleBuyer)
	laptop := postgrestest.SeedProduct(t, db, seller, "Laptop", "999.99", 5, true)

	conf, err := orders.NewConf(db)
	require.NoError(t, err)
	b, err := orders.NewBuilder(conf, orders.DefaultTaxRate)
	require.NoError(t, err)

	_, err = b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: laptop, Quantity: 6}))
	assert.ErrorIs(t, err, orders.ErrInsufficientStock)

	var stock, count int
	require.NoError(t, db.QueryRow(`SELECT stock FROM products WHERE id = $1`, laptop).Scan(&stock))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&count))
	assert.Equal(t, 5, stock)
	assert.Zero(t, count)
}

func TestConf_ConcurrentPurchasesNeverOversell(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	seller := postgrestest.SeedUser(t, db, "seller", auth.RoleSeller)
	buyer := postgrestest.SeedUser(t, db, "buyer", auth.RoleBuyer)
	laptop := postgrestest.SeedProduct(t, db, seller, "Laptop", "10.00", 3, true)

	conf, err := orders.NewConf(db)
	require.NoError(t, err)
	b, err := orders.NewBuilder(conf, orders.DefaultTaxRate)
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: laptop, Quantity: 3}))
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, orders.ErrInsufficientStock) || errors.Is(err, orders.ErrConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var stock int
	var available bool
	require.NoError(t, db.QueryRow(`SELECT stock, is_available FROM products WHERE id = $1`, laptop).Scan(&stock, &available))
	assert.Equal(t, 0, stock)
	assert.False(t, available)
}

func TestConf_DeletePendingOrderRestocks(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	seller := postgrestest.SeedUser(t, db, "seller", auth.RoleSeller)
	buyer := postgrestest.SeedUser(t, db, "buyer", auth.RoleBuyer)
	laptop := postgrestest.SeedProduct(t, db, seller, "Laptop", "10.00", 2, true)

	conf, err := orders.NewConf(db)
	require.NoError(t, err)
	b, err := orders.NewBuilder(conf, orders.DefaultTaxRate)
	require.NoError(t, err)

	o, err := b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: laptop, Quantity: 2}))
	require.NoError(t, err)

	require.NoError(t, conf.Delete(ctx, buyer, o.ID))

	var stock int
	var available bool
	require.NoError(t, db.QueryRow(`SELECT stock, is_available FROM products WHERE id = $1`, laptop).Scan(&stock, &available))
	assert.Equal(t, 2, stock)
	assert.True(t, available)

	_, err = conf.Get(ctx, buyer, o.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestConf_MarkPaidOnlyPendingWithMatchingAmount(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	seller := postgrestest.SeedUser(t, db, "seller", auth.RoleSeller)
	buyer := postgrestest.SeedUser(t, db, "buyer", auth.RoleBuyer)
	laptop := postgrestest.SeedProduct(t, db, seller, "Laptop", "10.00", 5, true)

	conf, err := orders.NewConf(db)
	require.NoError(t, err)
	b, err := orders.NewBuilder(conf, orders.DefaultTaxRate)
	require.NoError(t, err)

	_, _, err = conf.MarkPaid(ctx, 9999, orders.Payment{PaymentID: "pi_missing", Method: "card", AmountPaid: decimal.NewFromInt(1), Status: "succeeded"})
	assert.ErrorIs(t, err, orders.ErrNotFound)

	o, err := b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: laptop, Quantity: 1}))
	require.NoError(t, err)

	_, _, err = conf.MarkPaid(ctx, o.ID, orders.Payment{PaymentID: "pi_short", Method: "card", AmountPaid: decimal.RequireFromString("0.50"), Status: "succeeded"})
	assert.ErrorIs(t, err, orders.ErrInvalidRequest)

	var status string
	var payments int
	require.NoError(t, db.QueryRow(`SELECT status FROM orders WHERE id = $1`, o.ID).Scan(&status))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM payments`).Scan(&payments))
	assert.Equal(t, string(orders.StatusPending), status)
	assert.Zero(t, payments)

	_, err = conf.UpdateStatus(ctx, seller, o.ID, orders.StatusCanceled)
	require.NoError(t, err)

	_, recorded, err := conf.MarkPaid(ctx, o.ID, orders.Payment{PaymentID: "pi_late", Method: "card", AmountPaid: o.OrderTotal, Status: "succeeded"})
	assert.ErrorIs(t, err, orders.ErrConflict)
	assert.False(t, recorded)

	got, err := conf.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, got.Status)
	assert.False(t, got.IsOrdered)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM payments`).Scan(&payments))
	assert.Zero(t, payments)
}

func TestConf_DeletedProductCannotBeOrdered(t *testing.T) {
	db := postgrestest.NewDB(t)
	ctx := context.Background()

	seller := postgrestest.SeedUser(t, db, "seller", auth.RoleSeller)
	buyer := postgrestest.SeedUser(t, db, "buyer", auth.RoleBuyer)
	lamp := postgrestest.SeedProduct(t, db, seller, "Lamp", "10.00", 2, true)

	conf, err := orders.NewConf(db)
	require.NoError(t, err)
	b, err := orders.NewBuilder(conf, orders.DefaultTaxRate)
	require.NoError(t, err)
	catalog, err := products.NewConf(db)
	require.NoError(t, err)

	o, err := b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: lamp, Quantity: 2}))
	require.NoError(t, err)
	require.NoError(t, catalog.Delete(ctx, seller, lamp))

	_, err = b.Create(ctx, auth.Buyer(buyer), newOrder(orders.ItemRequest{ProductID: lamp, Quantity: 1}))
	assert.ErrorIs(t, err, orders.ErrNotFound)

	// cancelling the old order returns stock but does not relist the product
	require.NoError(t, conf.Delete(ctx, buyer, o.ID))
	var stock int
	var available bool
	require.NoError(t, db.QueryRow(`SELECT stock, is_available FROM products WHERE id = $1`, lamp).Scan(&stock, &available))
	assert.Equal(t, 2, stock)
	assert.False(t, available)
}
