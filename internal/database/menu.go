package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, name, category, description, price, image, is_available, created_at, updated_at`

func scanMenuItem(row pgx.Row) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Category,
		&i.Description,
		&i.Price,
		&i.Image,
		&i.IsAvailable,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getMenuItem = `
SELECT ` + menuItemColumns + `
FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	return scanMenuItem(row)
}

const listMenuItems = `
SELECT ` + menuItemColumns + `
FROM menu_items
WHERE ($1::text IS NULL OR category = $1::text)
  AND (NOT $2::boolean OR is_available)
ORDER BY category ASC, name ASC
`

type ListMenuItemsParams struct {
	Category      pgtype.Text `json:"category"`
	AvailableOnly bool        `json:"available_only"`
}

func (q *Queries) ListMenuItems(ctx context.Context, arg ListMenuItemsParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems, arg.Category, arg.AvailableOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		i, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createMenuItem = `
INSERT INTO menu_items (name, category, description, price, image, is_available)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Image       string         `json:"image"`
	IsAvailable bool           `json:"is_available"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.Name,
		arg.Category,
		arg.Description,
		arg.Price,
		arg.Image,
		arg.IsAvailable,
	)
	return scanMenuItem(row)
}

const updateMenuItem = `
UPDATE menu_items
SET name         = COALESCE($2, name),
    category     = COALESCE($3, category),
    description  = COALESCE($4, description),
    price        = COALESCE($5, price),
    image        = COALESCE($6, image),
    is_available = COALESCE($7, is_available),
    updated_at   = now()
WHERE id = $1
RETURNING ` + menuItemColumns

type UpdateMenuItemParams struct {
	ID          uuid.UUID      `json:"id"`
	Name        pgtype.Text    `json:"name"`
	Category    pgtype.Text    `json:"category"`
	Description pgtype.Text    `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Image       pgtype.Text    `json:"image"`
	IsAvailable pgtype.Bool    `json:"is_available"`
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID,
		arg.Name,
		arg.Category,
		arg.Description,
		arg.Price,
		arg.Image,
		arg.IsAvailable,
	)
	return scanMenuItem(row)
}

const deleteMenuItem = `
DELETE FROM menu_items
WHERE id = $1
`

// DeleteMenuItem returns pgx.ErrNoRows when no row matched. Orders keep their
// own copy of name and price, so deleting an item never touches them.
func (q *Queries) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deleteMenuItem, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
