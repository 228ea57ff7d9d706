package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/repository"
	"github.com/storefront/catalog/pkg/database"
	apperrors "github.com/storefront/catalog/pkg/errors"
)

// DB is the subset of a pgx pool the repository needs. *pgxpool.Pool and
// pgxmock pools both satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const productColumns = `id, user_id, name, image, brand, category, description, price, count_in_stock,
	rating, num_reviews, reviews, version, created_at, updated_at`

// ProductRepository implements repository.Store using PostgreSQL. Reviews
// live in a JSONB column next to the product row.
type ProductRepository struct {
	db  DB
	now func() time.Time
}

var _ repository.Store = (*ProductRepository)(nil)

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new product row.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.insert", query)
	defer func() { end(err) }()

	reviewsJSON, err := marshalReviews(p.Reviews)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.User,
		p.Name,
		p.Image,
		p.Brand,
		p.Category,
		p.Description,
		p.Price,
		p.CountInStock,
		p.Rating,
		p.NumReviews,
		reviewsJSON,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("product already exists")
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.select", query)
	defer func() { end(err) }()

	return scanProduct(r.db.QueryRow(ctx, query, id))
}

// List returns one page of products matching the filter and the total count.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) (_ []domain.Product, _ int, err error) {
	var (
		where string
		args  []any
	)
	if filter.Keyword != "" {
		where = "WHERE strpos(lower(name), lower($1)) > 0"
		args = append(args, filter.Keyword)
	}

	countQuery := "SELECT count(*) FROM products " + where

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.list", countQuery)
	defer func() { end(err) }()

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	size := filter.PageSize
	if size <= 0 {
		size = domain.PageSize
	}
	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		productColumns, where, n+1, n+2,
	)
	args = append(args, size, domain.Offset(filter.Page, size))

	products, err := r.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// TopRated returns up to limit products ordered by rating.
func (r *ProductRepository) TopRated(ctx context.Context, limit int) (_ []domain.Product, err error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY rating DESC, created_at ASC, id ASC
		LIMIT $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.top_rated", query)
	defer func() { end(err) }()

	return r.queryProducts(ctx, query, limit)
}

// Update overwrites the descriptive columns and returns the stored row.
func (r *ProductRepository) Update(ctx context.Context, id string, u domain.ProductUpdate) (_ *domain.Product, err error) {
	query := `
		UPDATE products
		SET name = $1, price = $2, category = $3, description = $4, image = $5,
		    brand = $6, count_in_stock = $7, updated_at = $8
		WHERE id = $9
		RETURNING ` + productColumns

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.update", query)
	defer func() { end(err) }()

	return scanProduct(r.db.QueryRow(ctx, query,
		u.Name,
		u.Price,
		u.Category,
		u.Description,
		u.Image,
		u.Brand,
		u.CountInStock,
		r.now(),
		id,
	))
}

// Delete removes a product by its ID.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.delete", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ReplaceReviews writes reviews and aggregate guarded by the version column.
func (r *ProductRepository) ReplaceReviews(ctx context.Context, p *domain.Product) (err error) {
	query := `
		UPDATE products
		SET reviews = $1, rating = $2, num_reviews = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "products.replace_reviews", query)
	defer func() { end(err) }()

	reviewsJSON, err := marshalReviews(p.Reviews)
	if err != nil {
		return err
	}
	rating, numReviews := domain.RecomputeAggregate(p.Reviews)
	now := r.now()

	ct, err := r.db.Exec(ctx, query, reviewsJSON, rating, numReviews, now, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update product reviews: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConflict
	}

	p.Rating, p.NumReviews = rating, numReviews
	p.UpdatedAt = now
	p.Version++
	return nil
}

// Ping checks the database connection.
func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// DeleteAll removes every product row.
func (r *ProductRepository) DeleteAll(ctx context.Context) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM products`)
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *ProductRepository) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// scanProduct reads one row in productColumns order.
func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p           domain.Product
		reviewsJSON []byte
	)

	err := row.Scan(
		&p.ID,
		&p.User,
		&p.Name,
		&p.Image,
		&p.Brand,
		&p.Category,
		&p.Description,
		&p.Price,
		&p.CountInStock,
		&p.Rating,
		&p.NumReviews,
		&reviewsJSON,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	p.Reviews = []domain.Review{}
	if len(reviewsJSON) > 0 {
		if err := json.Unmarshal(reviewsJSON, &p.Reviews); err != nil {
			return nil, fmt.Errorf("unmarshal reviews: %w", err)
		}
		if p.Reviews == nil {
			p.Reviews = []domain.Review{}
		}
	}
	return &p, nil
}

func marshalReviews(reviews []domain.Review) ([]byte, error) {
	if reviews == nil {
		reviews = []domain.Review{}
	}
	b, err := json.Marshal(reviews)
	if err != nil {
		return nil, fmt.Errorf("marshal reviews: %w", err)
	}
	return b, nil
}

// isUniqueViolation checks for SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
