package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockflow-erp/stockflow/internal/shared"
)

type Repository interface {
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, product Product) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, name, reference, category_id, quantity, unit_price, alert_threshold, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Reference, &p.CategoryID, &p.Quantity, &p.UnitPrice, &p.AlertThreshold, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.CategoryID != nil {
		argCount++
		query += ` AND category_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.CategoryID)
	}
	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR reference ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO products (name, reference, category_id, quantity, unit_price, alert_threshold, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`,
		product.Name, product.Reference, product.CategoryID, product.Quantity, product.UnitPrice, product.AlertThreshold, product.IsActive).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET name=$2, reference=$3, category_id=$4, unit_price=$5, alert_threshold=$6, is_active=$7, updated_at=NOW()
WHERE id=$1`, id, product.Name, product.Reference, product.CategoryID, product.UnitPrice, product.AlertThreshold, product.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		category.Name, category.Description).Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return Category{}, err
	}
	return category, nil
}
