package cart

import (
	"context"
	"testing"

	"shop-service/internal/products"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLookup map[int64]products.Product

func (m mockLookup) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := m[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

func setupTestCart(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lookup := mockLookup{
		1: {ID: 1, Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: 5, IsAvailable: true},
		2: {ID: 2, Name: "Mouse", Price: decimal.RequireFromString("19.50"), Stock: 10, IsAvailable: true},
		3: {ID: 3, Name: "Retired", Price: decimal.NewFromInt(1), Stock: 10, IsAvailable: false},
	}
	svc, err := NewService(client, lookup)
	require.NoError(t, err)
	return svc, mr
}

func TestNewCart_HasTTL(t *testing.T) {
	svc, mr := setupTestCart(t)

	c, err := svc.New(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, c.Token)
	assert.Equal(t, TTL, mr.TTL(cacheKey(c.Token)))
}

func TestAddItem_MergesAndChecksStock(t *testing.T) {
	svc, _ := setupTestCart(t)
	ctx := context.Background()
	c, err := svc.New(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.Token, 1, 2)
	require.NoError(t, err)
	got, err := svc.AddItem(ctx, c.Token, 1, 3)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 5, got.Items[0].Quantity)

	_, err = svc.AddItem(ctx, c.Token, 1, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAddItem_Errors(t *testing.T) {
	svc, _ := setupTestCart(t)
	ctx := context.Background()
	c, err := svc.New(ctx)
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		productID int64
		qty       int
		wantErr   error
	}{
		{"unavailable", c.Token, 3, 1, ErrUnavailable},
		{"unknown product", c.Token, 99, 1, products.ErrNotFound},
		{"zero quantity", c.Token, 1, 0, ErrInvalidQuantity},
		{"unknown cart", "6a0c3c1e-0000-4000-8000-000000000000", 1, 1, ErrCartNotFound},
		{"malformed token", "not-a-token", 1, 1, ErrCartNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, tt.token, tt.productID, tt.qty)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSetQuantityAndRemove(t *testing.T) {
	svc, _ := setupTestCart(t)
	ctx := context.Background()
	c, err := svc.New(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.Token, 1, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.Token, 2, 1)
	require.NoError(t, err)

	got, err := svc.SetQuantity(ctx, c.Token, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 4}}, got.Items)

	_, err = svc.SetQuantity(ctx, c.Token, 2, 11)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, err = svc.SetQuantity(ctx, c.Token, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []Item{{ProductID: 2, Quantity: 4}}, got.Items)

	got, err = svc.RemoveItem(ctx, c.Token, 2)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestView_PricesAtCurrentPrice(t *testing.T) {
	svc, _ := setupTestCart(t)
	ctx := context.Background()
	c, err := svc.New(ctx)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.Token, 1, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.Token, 2, 2)
	require.NoError(t, err)

	v, err := svc.View(ctx, c.Token)
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, "1999.98", v.Lines[0].Subtotal.String())
	assert.Equal(t, "2038.98", v.Total.String())
}

func TestClear_KeepsToken(t *testing.T) {
	svc, _ := setupTestCart(t)
	ctx := context.Background()
	c, err := svc.New(ctx)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.Token, 1, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, c.Token))
	got, err := svc.Get(ctx, c.Token)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestCartExpires(t *testing.T) {
	svc, mr := setupTestCart(t)
	ctx := context.Background()
	c, err := svc.New(ctx)
	require.NoError(t, err)

	mr.FastForward(TTL + 1)

	_, err = svc.Get(ctx, c.Token)
	assert.ErrorIs(t, err, ErrCartNotFound)
}
