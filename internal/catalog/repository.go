package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/aquaflow/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns the catalog ordered by name. An empty category lists every
// product.
func (r *ProductRepository) List(ctx context.Context, category domain.Category) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price, image, category, in_stock, volume, features
		FROM products
		WHERE $1 = '' OR category = $1
		ORDER BY name
	`, string(category))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, image, category, in_stock, volume, features
		FROM products
		WHERE id = $1
	`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	var (
		p        domain.Product
		price    decimal.Decimal
		volume   sql.NullString
		features pq.StringArray
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Image, &p.Category, &p.InStock, &volume, &features); err != nil {
		return nil, err
	}
	p.Price = price
	p.Volume = volume.String
	if len(features) > 0 {
		p.Features = []string(features)
	}
	return &p, nil
}
