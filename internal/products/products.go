package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	return &Conf{db: db}, nil
}

const productColumns = `id, seller_id, name, description, category_id, image_url, price, stock, is_available, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.CategoryID, &p.ImageURL,
		&p.Price, &p.Stock, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (c *Conf) Insert(ctx context.Context, p Product) (Product, error) {
	query := `
		INSERT INTO products (seller_id, name, description, category_id, image_url, price, stock, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + productColumns
	created, err := scanProduct(c.db.QueryRowContext(ctx, query, p.SellerID, p.Name, p.Description,
		p.CategoryID, p.ImageURL, p.Price, p.Stock, p.IsAvailable))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Product{}, errors.Join(ErrInvalid, errors.New("category does not exist"))
		}
		return Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	return created, nil
}

func (c *Conf) Get(ctx context.Context, id int64) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND deleted_at IS NULL`
	p, err := scanProduct(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

// List returns products matching f ordered by id.
func (c *Conf) List(ctx context.Context, f Filter) ([]Product, error) {
	f = f.normalize()
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%')
		  AND ($2 = 0 OR category_id = $2)
		  AND ($3 = 0 OR seller_id = $3)
		ORDER BY id
		LIMIT $4 OFFSET $5
	`
	rows, err := c.db.QueryContext(ctx, query, f.Name, f.CategoryID, f.SellerID, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	list := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Update applies u to a product owned by sellerID under a row lock.
func (c *Conf) Update(ctx context.Context, sellerID, id int64, u UpdateProduct) (Product, error) {
	var updated Product
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock product: %w", err)
		}
		if current.SellerID != sellerID {
			return ErrForbidden
		}

		next, err := u.Apply(current)
		if err != nil {
			return err
		}
		query := `
			UPDATE products
			SET name = $1, description = $2, category_id = $3, image_url = $4,
				price = $5, stock = $6, is_available = $7, updated_at = NOW()
			WHERE id = $8
			RETURNING ` + productColumns
		updated, err = scanProduct(tx.QueryRowContext(ctx, query, next.Name, next.Description, next.CategoryID,
			next.ImageURL, next.Price, next.Stock, next.IsAvailable, id))
		if err != nil {
			if isForeignKeyViolation(err) {
				return errors.Join(ErrInvalid, errors.New("category does not exist"))
			}
			return fmt.Errorf("failed to update product: %w", err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}

// Delete hides a product owned by sellerID. The row stays so past order
// lines keep their reference; it is no longer listed, sold or restocked.
func (c *Conf) Delete(ctx context.Context, sellerID, id int64) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		var owner int64
		err := tx.QueryRowContext(ctx,
			`SELECT seller_id FROM products WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock product: %w", err)
		}
		if owner != sellerID {
			return ErrForbidden
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET deleted_at = NOW(), is_available = FALSE, updated_at = NOW()
			WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return nil
	})
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", errors.Join(err, er))
		}
		return fmt.Errorf("failed to execute withTx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isForeignKeyViolation(err error) bool { return pgCode(err) == "23503" }

func isUniqueViolation(err error) bool { return pgCode(err) == "23505" }
