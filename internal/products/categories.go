package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrDuplicateCategory = errors.New("a category with this name already exists")
	ErrCategoryInUse     = errors.New("category still has products")
)

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"category_name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"cat_image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewCategory struct {
	Name        string `json:"category_name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=255"`
	ImageURL    string `json:"cat_image_url" validate:"omitempty,url,max=500"`
}

// UpdateCategory is a partial update; nil fields are left unchanged.
type UpdateCategory struct {
	Name        *string `json:"category_name" validate:"omitempty,min=1,max=50"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	ImageURL    *string `json:"cat_image_url" validate:"omitempty,url,max=500"`
}

func (u UpdateCategory) Apply(c Category) Category {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.ImageURL != nil {
		c.ImageURL = *u.ImageURL
	}
	return c
}

const categoryColumns = `id, category_name, description, image_url, created_at, updated_at`

func scanCategory(row rowScanner) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (c *Conf) InsertCategory(ctx context.Context, n NewCategory) (Category, error) {
	query := `
		INSERT INTO categories (category_name, description, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING ` + categoryColumns
	created, err := scanCategory(c.db.QueryRowContext(ctx, query, n.Name, n.Description, n.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return Category{}, ErrDuplicateCategory
		}
		return Category{}, fmt.Errorf("failed to insert category: %w", err)
	}
	return created, nil
}

func (c *Conf) GetCategory(ctx context.Context, id int64) (Category, error) {
	cat, err := scanCategory(c.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, fmt.Errorf("%w: %d", ErrCategoryNotFound, id)
	}
	if err != nil {
		return Category{}, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

func (c *Conf) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY category_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	list := []Category{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		list = append(list, cat)
	}
	return list, rows.Err()
}

func (c *Conf) UpdateCategory(ctx context.Context, id int64, u UpdateCategory) (Category, error) {
	var updated Category
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanCategory(tx.QueryRowContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrCategoryNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock category: %w", err)
		}

		next := u.Apply(current)
		query := `
			UPDATE categories
			SET category_name = $1, description = $2, image_url = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING ` + categoryColumns
		updated, err = scanCategory(tx.QueryRowContext(ctx, query, next.Name, next.Description, next.ImageURL, id))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateCategory
			}
			return fmt.Errorf("failed to update category: %w", err)
		}
		return nil
	})
	if err != nil {
		return Category{}, err
	}
	return updated, nil
}

// DeleteCategory refuses while any product, deleted or not, still points at it.
func (c *Conf) DeleteCategory(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %d", ErrCategoryInUse, id)
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrCategoryNotFound, id)
	}
	return nil
}
