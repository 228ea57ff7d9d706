package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/event"
	"github.com/storefront/catalog/internal/lock"
	"github.com/storefront/catalog/internal/repository"
	apperrors "github.com/storefront/catalog/pkg/errors"
)

// DefaultReviewMaxAttempts bounds the optimistic retries of AddReview.
const DefaultReviewMaxAttempts = 3

const productResource = "Product"

// Options tunes a CatalogService.
type Options struct {
	// ReviewMaxAttempts is how often AddReview retries after losing a
	// version race. Zero means DefaultReviewMaxAttempts.
	ReviewMaxAttempts int
}

// CatalogService implements the product catalog operations.
type CatalogService struct {
	repo        repository.ProductRepository
	locker      lock.Locker
	producer    *event.Producer
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(
	repo repository.ProductRepository,
	locker lock.Locker,
	producer *event.Producer,
	logger *slog.Logger,
	opts Options,
) *CatalogService {
	if opts.ReviewMaxAttempts <= 0 {
		opts.ReviewMaxAttempts = DefaultReviewMaxAttempts
	}
	return &CatalogService{
		repo:        repo,
		locker:      locker,
		producer:    producer,
		logger:      logger,
		maxAttempts: opts.ReviewMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListProducts returns one page of products whose name contains keyword.
// Pages below 1 are treated as page 1.
func (s *CatalogService) ListProducts(ctx context.Context, keyword string, page int) (*domain.ProductPage, error) {
	page = domain.NormalizePage(page)

	products, total, err := s.repo.List(ctx, repository.ProductFilter{
		Keyword:  keyword,
		Page:     page,
		PageSize: domain.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return &domain.ProductPage{
		Products: products,
		Page:     page,
		Pages:    domain.Pages(total, domain.PageSize),
	}, nil
}

// GetProduct retrieves a product with its reviews.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !domain.IsValidID(id) {
		return nil, apperrors.NotFound(productResource)
	}
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get product", err)
	}
	return product, nil
}

// TopRatedProducts returns the highest rated products.
func (s *CatalogService) TopRatedProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.TopRated(ctx, domain.TopRatedLimit)
	if err != nil {
		return nil, fmt.Errorf("top rated products: %w", err)
	}
	return products, nil
}

// CreateProduct stores a placeholder product owned by the caller.
func (s *CatalogService) CreateProduct(ctx context.Context, principal domain.Principal) (*domain.Product, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}

	product := domain.NewPlaceholderProduct(principal.ID, s.now())
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	if err := s.producer.PublishProductCreated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.created event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("user_id", principal.ID),
	)

	return product, nil
}

// UpdateProduct overwrites the descriptive fields of a product.
func (s *CatalogService) UpdateProduct(ctx context.Context, principal domain.Principal, id string, update domain.ProductUpdate) (*domain.Product, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if update.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}
	if update.CountInStock < 0 {
		return nil, apperrors.InvalidInput("countInStock must not be negative")
	}
	if !domain.IsValidID(id) {
		return nil, apperrors.NotFound(productResource)
	}

	product, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, storeError("update product", err)
	}

	if err := s.producer.PublishProductUpdated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.updated event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product updated",
		slog.String("product_id", product.ID),
	)

	return product, nil
}

// DeleteProduct removes a product permanently.
func (s *CatalogService) DeleteProduct(ctx context.Context, principal domain.Principal, id string) error {
	if err := requireAdmin(principal); err != nil {
		return err
	}
	if !domain.IsValidID(id) {
		return apperrors.NotFound(productResource)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError("delete product", err)
	}

	if err := s.producer.PublishProductDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.deleted event",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product deleted",
		slog.String("product_id", id),
	)

	return nil
}

// AddReview appends the caller's review and recomputes the product rating.
// Submissions for one product are serialized by the locker and each write is
// guarded by the product version.
func (s *CatalogService) AddReview(ctx context.Context, principal domain.Principal, id string, rating int, comment string) error {
	if principal.ID == "" {
		return apperrors.Unauthorized("not authorized")
	}
	if rating < domain.MinRating || rating > domain.MaxRating {
		return apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	if !domain.IsValidID(id) {
		return apperrors.NotFound(productResource)
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			busy := apperrors.Conflict("Product is busy, please retry")
			busy.Err = errors.Join(apperrors.ErrConflict, err)
			return busy
		}
		return fmt.Errorf("lock product %s: %w", id, err)
	}
	defer unlock()

	review := domain.Review{
		Name:    principal.Name,
		Rating:  rating,
		Comment: comment,
		User:    principal.ID,
	}

	var product *domain.Product
	for attempt := 1; ; attempt++ {
		product, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return storeError("get product", err)
		}
		if product.HasReviewFrom(principal.ID) {
			return apperrors.AlreadyReviewed(productResource)
		}

		review.CreatedAt = s.now()
		product.AppendReview(review)

		err = s.repo.ReplaceReviews(ctx, product)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return storeError("save review", err)
		}
		if attempt >= s.maxAttempts {
			s.logger.WarnContext(ctx, "review write kept losing version race",
				slog.String("product_id", id),
				slog.Int("attempts", attempt),
			)
			return apperrors.Conflict("product was modified concurrently, please retry")
		}
	}

	if err := s.producer.PublishProductReviewed(ctx, product, review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.reviewed event",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review added",
		slog.String("product_id", id),
		slog.String("user_id", principal.ID),
		slog.Int("rating", rating),
		slog.Int("num_reviews", product.NumReviews),
	)

	return nil
}

func requireAdmin(p domain.Principal) error {
	if p.ID == "" {
		return apperrors.Unauthorized("not authorized")
	}
	if !p.IsAdmin {
		return apperrors.Forbidden("not authorized as an admin")
	}
	return nil
}

// storeError turns a bare not-found from the store into the product 404 and
// wraps everything else with op.
func storeError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.Is(err, apperrors.ErrNotFound) && !errors.As(err, &appErr) {
		return apperrors.NotFound(productResource)
	}
	return fmt.Errorf("%s: %w", op, err)
}
