package products

import (
	"context"
	"errors"
	"log/slog"

	"shop-service/pkg/logkey"
)

type Store interface {
	Insert(ctx context.Context, p Product) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, f Filter) ([]Product, error)
	Update(ctx context.Context, sellerID, id int64, u UpdateProduct) (Product, error)
	Delete(ctx context.Context, sellerID, id int64) error
}

type Cache interface {
	Get(ctx context.Context, id int64) (Product, error)
	Set(ctx context.Context, p Product) error
	Delete(ctx context.Context, ids ...int64) error
}

// Catalog serves product reads through a cache. Cache failures are logged
// and fall through to the store.
type Catalog struct {
	store Store
	cache Cache
}

func NewCatalog(store Store, cache Cache) (*Catalog, error) {
	if store == nil {
		return nil, errors.New("product store is nil")
	}
	return &Catalog{store: store, cache: cache}, nil
}

func (c *Catalog) Create(ctx context.Context, sellerID int64, n NewProduct) (Product, error) {
	p, err := n.Build(sellerID)
	if err != nil {
		return Product{}, err
	}
	return c.store.Insert(ctx, p)
}

func (c *Catalog) Get(ctx context.Context, id int64) (Product, error) {
	if c.cache != nil {
		p, err := c.cache.Get(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("product cache read failed", slog.Int64(logkey.ProductID, id), slog.String("error", err.Error()))
		}
	}

	p, err := c.store.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, p); err != nil {
			slog.Warn("product cache write failed", slog.Int64(logkey.ProductID, id), slog.String("error", err.Error()))
		}
	}
	return p, nil
}

func (c *Catalog) List(ctx context.Context, f Filter) ([]Product, error) {
	return c.store.List(ctx, f)
}

func (c *Catalog) Update(ctx context.Context, sellerID, id int64, u UpdateProduct) (Product, error) {
	p, err := c.store.Update(ctx, sellerID, id, u)
	if err != nil {
		return Product{}, err
	}
	c.Invalidate(ctx, id)
	return p, nil
}

func (c *Catalog) Delete(ctx context.Context, sellerID, id int64) error {
	if err := c.store.Delete(ctx, sellerID, id); err != nil {
		return err
	}
	c.Invalidate(ctx, id)
	slog.Info("product deleted", slog.Int64(logkey.ProductID, id), slog.Int64(logkey.UserID, sellerID))
	return nil
}

// Invalidate drops cached entries, e.g. after an order changed their stock.
func (c *Catalog) Invalidate(ctx context.Context, ids ...int64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, ids...); err != nil {
		slog.Warn("product cache invalidation failed", slog.String("error", err.Error()))
	}
}
