package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/products"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// TTL is how long an untouched cart survives.
const TTL = 7 * 24 * time.Hour

const maxWatchRetries = 5

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrUnavailable       = errors.New("product unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBusy              = errors.New("cart modified concurrently, retry")
)

type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Cart struct {
	Token     string    `json:"token"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Line is a cart item priced at the current catalog price.
type Line struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	IsAvailable bool            `json:"is_available"`
}

type View struct {
	Token string          `json:"token"`
	Lines []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type ProductLookup interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// Service keeps carts in Redis keyed by an opaque token handed to the client.
type Service struct {
	client   *redis.Client
	products ProductLookup
	ttl      time.Duration
}

func NewService(client *redis.Client, lookup ProductLookup) (*Service, error) {
	if client == nil || lookup == nil {
		return nil, errors.New("redis client and product lookup are required")
	}
	return &Service{client: client, products: lookup, ttl: TTL}, nil
}

func cacheKey(token string) string {
	return fmt.Sprintf("cart:%s", token)
}

// New creates an empty cart and returns its token.
func (s *Service) New(ctx context.Context) (Cart, error) {
	now := time.Now().UTC()
	c := Cart{Token: uuid.NewString(), Items: []Item{}, CreatedAt: now, UpdatedAt: now}
	data, err := json.Marshal(c)
	if err != nil {
		return Cart{}, fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.client.Set(ctx, cacheKey(c.Token), data, s.ttl).Err(); err != nil {
		return Cart{}, fmt.Errorf("redis set failed: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, token string) (Cart, error) {
	return s.load(ctx, s.client, token)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Service) load(ctx context.Context, g getter, token string) (Cart, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Cart{}, ErrCartNotFound
	}
	data, err := g.Get(ctx, cacheKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, ErrCartNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("redis get failed: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return c, nil
}

// update applies fn to the stored cart under WATCH so concurrent writers on
// the same token cannot lose each other's changes.
func (s *Service) update(ctx context.Context, token string, fn func(*Cart) error) (Cart, error) {
	key := cacheKey(token)
	var result Cart
	txf := func(tx *redis.Tx) error {
		c, err := s.load(ctx, tx, token)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			result = c
		}
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Cart{}, err
		}
		return result, nil
	}
	return Cart{}, ErrBusy
}

// AddItem adds qty units of a product, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, token string, productID int64, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, ErrInvalidQuantity
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if !p.IsAvailable {
		return Cart{}, fmt.Errorf("%w: %s", ErrUnavailable, p.Name)
	}
	return s.update(ctx, token, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].ProductID == productID {
				if c.Items[i].Quantity+qty > p.Stock {
					return fmt.Errorf("%w: %s has %d in stock", ErrInsufficientStock, p.Name, p.Stock)
				}
				c.Items[i].Quantity += qty
				return nil
			}
		}
		if qty > p.Stock {
			return fmt.Errorf("%w: %s has %d in stock", ErrInsufficientStock, p.Name, p.Stock)
		}
		c.Items = append(c.Items, Item{ProductID: productID, Quantity: qty})
		return nil
	})
}

// SetQuantity replaces the quantity of a line. Zero removes it.
func (s *Service) SetQuantity(ctx context.Context, token string, productID int64, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, ErrInvalidQuantity
	}
	if qty == 0 {
		return s.RemoveItem(ctx, token, productID)
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if qty > p.Stock {
		return Cart{}, fmt.Errorf("%w: %s has %d in stock", ErrInsufficientStock, p.Name, p.Stock)
	}
	return s.update(ctx, token, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].ProductID == productID {
				c.Items[i].Quantity = qty
				return nil
			}
		}
		return fmt.Errorf("%w: product %d is not in the cart", products.ErrNotFound, productID)
	})
}

func (s *Service) RemoveItem(ctx context.Context, token string, productID int64) (Cart, error) {
	return s.update(ctx, token, func(c *Cart) error {
		items := c.Items[:0]
		for _, it := range c.Items {
			if it.ProductID != productID {
				items = append(items, it)
			}
		}
		c.Items = items
		return nil
	})
}

// Clear empties the cart but keeps the token valid.
func (s *Service) Clear(ctx context.Context, token string) error {
	_, err := s.update(ctx, token, func(c *Cart) error {
		c.Items = []Item{}
		return nil
	})
	return err
}

// View prices the cart at current catalog prices. Products that have since
// disappeared from the catalog are dropped from the view.
func (s *Service) View(ctx context.Context, token string) (View, error) {
	c, err := s.Get(ctx, token)
	if err != nil {
		return View{}, err
	}
	v := View{Token: c.Token, Lines: []Line{}, Total: decimal.Zero}
	for _, it := range c.Items {
		p, err := s.products.Get(ctx, it.ProductID)
		if errors.Is(err, products.ErrNotFound) {
			continue
		}
		if err != nil {
			return View{}, err
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		v.Lines = append(v.Lines, Line{
			ProductID:   p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Quantity:    it.Quantity,
			Subtotal:    sub,
			IsAvailable: p.IsAvailable,
		})
		v.Total = v.Total.Add(sub)
	}
	return v, nil
}
