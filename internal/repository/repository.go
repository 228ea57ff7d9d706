package repository

import (
	"context"

	"github.com/storefront/catalog/internal/domain"
)

// ProductFilter holds the criteria for listing products.
type ProductFilter struct {
	// Keyword matches products whose name contains it, ignoring case.
	// Characters are matched literally.
	Keyword  string
	Page     int
	PageSize int
}

// ProductRepository defines the data access contract for products.
// Lists are ordered by creation time and then id, on every implementation.
type ProductRepository interface {
	// Create persists a new product.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product with its reviews. It returns
	// apperrors.ErrNotFound when no product has the id.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// List returns one page of products matching the filter and the total
	// number of matches.
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)

	// TopRated returns up to limit products by rating, highest first.
	TopRated(ctx context.Context, limit int) ([]domain.Product, error)

	// Update overwrites the descriptive fields of a product and returns the
	// stored result.
	Update(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error)

	// Delete removes a product.
	Delete(ctx context.Context, id string) error

	// ReplaceReviews stores product.Reviews together with its aggregate,
	// provided the stored version still equals product.Version. On success
	// product.Version is advanced. A stale version yields
	// apperrors.ErrConflict.
	ReplaceReviews(ctx context.Context, product *domain.Product) error
}

// Store is a ProductRepository backed by a running system.
type Store interface {
	ProductRepository

	// Ping checks that the backing system is reachable.
	Ping(ctx context.Context) error

	// DeleteAll removes every product and reports how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
}
