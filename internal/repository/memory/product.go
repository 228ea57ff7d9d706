package memory

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/repository"
	"github.com/storefront/catalog/pkg/database"
	apperrors "github.com/storefront/catalog/pkg/errors"
)

// ProductRepository keeps products in process memory. It is meant for local
// development and tests.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	now      func() time.Time
}

var _ repository.Store = (*ProductRepository)(nil)

// NewProductRepository creates an empty in-memory product repository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]*domain.Product),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a copy of p.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.Create", "")
	defer func() { end(err) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; ok {
		return apperrors.Conflict("product already exists")
	}
	r.products[p.ID] = p.Clone()
	return nil
}

// GetByID returns a copy of the stored product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.GetByID", "")
	defer end(nil)

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns one page of matching products in creation order.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.List", "")
	defer end(nil)

	var match *regexp.Regexp
	if filter.Keyword != "" {
		match = regexp.MustCompile("(?i)" + regexp.QuoteMeta(filter.Keyword))
	}

	r.mu.RLock()
	all := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if match == nil || match.MatchString(p.Name) {
			all = append(all, p.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return createdBefore(all[i], all[j]) })

	size := filter.PageSize
	if size <= 0 {
		size = domain.PageSize
	}
	start := domain.Offset(filter.Page, size)

	products := []domain.Product{}
	if start < len(all) {
		end := start + min(size, len(all)-start)
		for _, p := range all[start:end] {
			products = append(products, *p)
		}
	}
	return products, len(all), nil
}

// TopRated returns up to limit products by rating, ties in creation order.
func (r *ProductRepository) TopRated(ctx context.Context, limit int) ([]domain.Product, error) {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.TopRated", "")
	defer end(nil)

	r.mu.RLock()
	all := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Rating != all[j].Rating {
			return all[i].Rating > all[j].Rating
		}
		return createdBefore(all[i], all[j])
	})

	products := []domain.Product{}
	for i := 0; i < len(all) && i < limit; i++ {
		products = append(products, *all[i])
	}
	return products, nil
}

// Update overwrites the descriptive fields of a stored product.
func (r *ProductRepository) Update(ctx context.Context, id string, u domain.ProductUpdate) (*domain.Product, error) {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.Update", "")
	defer end(nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	p.Apply(u)
	p.UpdatedAt = r.now()
	return p.Clone(), nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.Delete", "")
	defer end(nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

// ReplaceReviews stores p's reviews if the stored version matches p.Version.
func (r *ProductRepository) ReplaceReviews(ctx context.Context, p *domain.Product) error {
	_, end := database.TraceQuery(ctx, database.SystemMemory, "products.ReplaceReviews", "")
	defer end(nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[p.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Version != p.Version {
		return apperrors.ErrConflict
	}

	next := p.Clone()
	stored.Reviews = next.Reviews
	stored.Rating, stored.NumReviews = domain.RecomputeAggregate(stored.Reviews)
	stored.UpdatedAt = r.now()
	stored.Version++

	p.Rating, p.NumReviews = stored.Rating, stored.NumReviews
	p.UpdatedAt = stored.UpdatedAt
	p.Version = stored.Version
	return nil
}

// Ping always succeeds.
func (r *ProductRepository) Ping(context.Context) error { return nil }

// DeleteAll empties the repository.
func (r *ProductRepository) DeleteAll(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.products))
	r.products = make(map[string]*domain.Product)
	return n, nil
}

func createdBefore(a, b *domain.Product) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
