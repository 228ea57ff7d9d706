package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/event"
	"github.com/storefront/catalog/internal/lock"
	"github.com/storefront/catalog/internal/repository"
	"github.com/storefront/catalog/internal/repository/memory"
	apperrors "github.com/storefront/catalog/pkg/errors"
	pkgkafka "github.com/storefront/catalog/pkg/kafka"
)

// =============================================================================
// Test helpers
// =============================================================================

var (
	admin    = domain.Principal{ID: "admin-1", Name: "Admin", IsAdmin: true}
	customer = domain.Principal{ID: "user-1", Name: "John Doe"}
	other    = domain.Principal{ID: "user-2", Name: "Jane Doe"}
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, repo repository.ProductRepository) (*CatalogService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewCatalogService(repo, lock.NewMemoryLocker(), event.NewProducer(pub, testLogger()), testLogger(), Options{})
	return svc, pub
}

func createNamed(t *testing.T, svc *CatalogService, name string) *domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), admin)
	require.NoError(t, err)
	if name == "" {
		return p
	}
	p, err = svc.UpdateProduct(context.Background(), admin, p.ID, domain.ProductUpdate{Name: name})
	require.NoError(t, err)
	return p
}

// clock ticks one second per call so creation order is strict.
func clock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// =============================================================================
// CreateProduct / GetProduct
// =============================================================================

func TestCreateProduct_PlaceholderThenGet(t *testing.T) {
	svc, pub := newTestService(t, memory.NewProductRepository())

	created, err := svc.CreateProduct(context.Background(), admin)
	require.NoError(t, err)

	got, err := svc.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlaceholderName, got.Name)
	assert.Equal(t, domain.PlaceholderImage, got.Image)
	assert.Equal(t, domain.PlaceholderBrand, got.Brand)
	assert.Equal(t, domain.PlaceholderCategory, got.Category)
	assert.Equal(t, domain.PlaceholderDescription, got.Description)
	assert.Zero(t, got.Price)
	assert.Zero(t, got.CountInStock)
	assert.Zero(t, got.NumReviews)
	assert.Empty(t, got.Reviews)
	assert.Equal(t, admin.ID, got.User)

	assert.Equal(t, []string{event.TopicProductCreated}, pub.published())
}

func TestCreateProduct_RequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())

	_, err := svc.CreateProduct(context.Background(), customer)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.CreateProduct(context.Background(), domain.Principal{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCreateProduct_PublishFailureDoesNotFail(t *testing.T) {
	svc, pub := newTestService(t, memory.NewProductRepository())
	pub.err = errors.New("broker down")

	p, err := svc.CreateProduct(context.Background(), admin)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestGetProduct_NotFound(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())

	tests := []struct {
		name string
		id   string
	}{
		{"unknown uuid", "5b0b2a6e-2f7a-4c36-9a8f-1c7f7b0e9d11"},
		{"malformed id", "not-an-id"},
		{"object id", "64b7f1c2e4b0a1a2b3c4d5e6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetProduct(context.Background(), tt.id)
			require.ErrorIs(t, err, apperrors.ErrNotFound)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "Product not found", appErr.Message)
		})
	}
}

// =============================================================================
// ListProducts / TopRatedProducts
// =============================================================================

func TestListProducts_PaginationCoversAllMatches(t *testing.T) {
	repo := memory.NewProductRepository()
	svc, _ := newTestService(t, repo)
	svc.now = clock()

	want := map[string]bool{}
	for i := 0; i < 19; i++ {
		name := fmt.Sprintf("Phone %02d", i)
		if i%4 == 0 {
			name = fmt.Sprintf("Camera %02d", i)
		} else {
			want[name] = true
		}
		createNamed(t, svc, name)
	}

	first, err := svc.ListProducts(context.Background(), "PHONE", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 2, first.Pages)

	seen := map[string]bool{}
	for page := 1; page <= first.Pages; page++ {
		res, err := svc.ListProducts(context.Background(), "PHONE", page)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Products), domain.PageSize)
		for _, p := range res.Products {
			assert.False(t, seen[p.Name], "duplicate %s", p.Name)
			seen[p.Name] = true
		}
	}
	assert.Equal(t, want, seen)
}

func TestListProducts_DefaultsToFirstPage(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	svc.now = clock()
	for i := 0; i < 10; i++ {
		createNamed(t, svc, fmt.Sprintf("item %02d", i))
	}

	for _, page := range []int{0, -1, -100} {
		res, err := svc.ListProducts(context.Background(), "", page)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Page)
		assert.Equal(t, 2, res.Pages)
		require.Len(t, res.Products, 8)
		assert.Equal(t, "item 00", res.Products[0].Name)
	}
}

func TestListProducts_HugePageNumber(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	svc.now = clock()
	for i := 0; i < 20; i++ {
		createNamed(t, svc, fmt.Sprintf("item %02d", i))
	}

	for _, page := range []int{math.MaxInt64, 1<<61 + 1} {
		res, err := svc.ListProducts(context.Background(), "", page)
		require.NoError(t, err)
		assert.Equal(t, page, res.Page)
		assert.Equal(t, 3, res.Pages)
		assert.Empty(t, res.Products)
	}
}

func TestListProducts_EmptyStore(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())

	res, err := svc.ListProducts(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Page)
	assert.Zero(t, res.Pages)
	assert.NotNil(t, res.Products)
	assert.Empty(t, res.Products)
}

func TestTopRatedProducts(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	svc.now = clock()

	ratings := []int{2, 5, 3, 4, 1}
	for i, r := range ratings {
		p := createNamed(t, svc, fmt.Sprintf("p%d", i))
		require.NoError(t, svc.AddReview(context.Background(), customer, p.ID, r, ""))
	}

	top, err := svc.TopRatedProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, 5.0, top[0].Rating)
	assert.Equal(t, 4.0, top[1].Rating)
	assert.Equal(t, 3.0, top[2].Rating)
}

// =============================================================================
// UpdateProduct / DeleteProduct
// =============================================================================

func TestUpdateProduct_OverwritesOnlyDescriptiveFields(t *testing.T) {
	svc, pub := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")
	require.NoError(t, svc.AddReview(context.Background(), customer, p.ID, 4, "nice"))

	update := domain.ProductUpdate{
		Name:         "Sony Playstation 4 Pro White Version",
		Price:        399.99,
		Category:     "Electronics",
		Description:  "The ultimate home entertainment center",
		Image:        "/images/playstation.jpg",
		Brand:        "Sony",
		CountInStock: 11,
	}
	_, err := svc.UpdateProduct(context.Background(), admin, p.ID, update)
	require.NoError(t, err)

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, update.Name, got.Name)
	assert.Equal(t, update.Price, got.Price)
	assert.Equal(t, update.Category, got.Category)
	assert.Equal(t, update.Description, got.Description)
	assert.Equal(t, update.Image, got.Image)
	assert.Equal(t, update.Brand, got.Brand)
	assert.Equal(t, update.CountInStock, got.CountInStock)

	assert.Equal(t, admin.ID, got.User)
	assert.Equal(t, 1, got.NumReviews)
	assert.Equal(t, 4.0, got.Rating)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, "nice", got.Reviews[0].Comment)

	assert.Contains(t, pub.published(), event.TopicProductUpdated)
}

func TestUpdateProduct_Errors(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	_, err := svc.UpdateProduct(context.Background(), admin, "5b0b2a6e-2f7a-4c36-9a8f-1c7f7b0e9d11", domain.ProductUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.UpdateProduct(context.Background(), admin, "bogus", domain.ProductUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.UpdateProduct(context.Background(), admin, p.ID, domain.ProductUpdate{Price: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.UpdateProduct(context.Background(), admin, p.ID, domain.ProductUpdate{CountInStock: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.UpdateProduct(context.Background(), customer, p.ID, domain.ProductUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestDeleteProduct(t *testing.T) {
	svc, pub := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	require.NoError(t, svc.DeleteProduct(context.Background(), admin, p.ID))

	_, err := svc.GetProduct(context.Background(), p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteProduct(context.Background(), admin, p.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(context.Background(), customer, p.ID), apperrors.ErrForbidden)
	assert.Contains(t, pub.published(), event.TopicProductDeleted)
}

// =============================================================================
// AddReview
// =============================================================================

func TestAddReview_MeanOfRatings(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	require.NoError(t, svc.AddReview(context.Background(), domain.Principal{ID: "a", Name: "A"}, p.ID, 5, "great"))
	require.NoError(t, svc.AddReview(context.Background(), domain.Principal{ID: "b", Name: "B"}, p.ID, 3, "ok"))
	require.NoError(t, svc.AddReview(context.Background(), domain.Principal{ID: "c", Name: "C"}, p.ID, 4, "good"))

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NumReviews)
	assert.Equal(t, 4.0, got.Rating)
	require.Len(t, got.Reviews, 3)
	assert.Equal(t, "A", got.Reviews[0].Name)
	assert.Equal(t, "a", got.Reviews[0].User)
	assert.False(t, got.Reviews[0].CreatedAt.IsZero())
}

func TestAddReview_DuplicateFromSameUser(t *testing.T) {
	svc, pub := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	require.NoError(t, svc.AddReview(context.Background(), customer, p.ID, 5, "first"))

	err := svc.AddReview(context.Background(), customer, p.ID, 1, "second")
	require.ErrorIs(t, err, apperrors.ErrAlreadyReviewed)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	require.NoError(t, svc.AddReview(context.Background(), other, p.ID, 3, "other"))

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumReviews)
	assert.Equal(t, 4.0, got.Rating)

	reviewed := 0
	for _, topic := range pub.published() {
		if topic == event.TopicProductReviewed {
			reviewed++
		}
	}
	assert.Equal(t, 2, reviewed)
}

func TestAddReview_Validation(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	assert.ErrorIs(t, svc.AddReview(context.Background(), customer, p.ID, 0, ""), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, svc.AddReview(context.Background(), customer, p.ID, 6, ""), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, svc.AddReview(context.Background(), domain.Principal{}, p.ID, 3, ""), apperrors.ErrUnauthorized)
	assert.ErrorIs(t, svc.AddReview(context.Background(), customer, "bogus", 3, ""), apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.AddReview(context.Background(), customer, "5b0b2a6e-2f7a-4c36-9a8f-1c7f7b0e9d11", 3, ""), apperrors.ErrNotFound)
}

func TestAddReview_ConcurrentUsersAllCounted(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := domain.Principal{ID: fmt.Sprintf("user-%d", i), Name: "U"}
			assert.NoError(t, svc.AddReview(context.Background(), u, p.ID, 1+i%5, ""))
		}(i)
	}
	wg.Wait()

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.NumReviews)
	assert.Len(t, got.Reviews, n)
	assert.Equal(t, 3.0, got.Rating)
}

func TestAddReview_ConcurrentDuplicateOnlyOnce(t *testing.T) {
	svc, _ := newTestService(t, memory.NewProductRepository())
	p := createNamed(t, svc, "")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.AddReview(context.Background(), customer, p.ID, 5, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumReviews)
}

// conflictingRepo loses the version race a fixed number of times.
type conflictingRepo struct {
	repository.ProductRepository
	conflicts int
	calls     int
}

func (c *conflictingRepo) ReplaceReviews(ctx context.Context, p *domain.Product) error {
	c.calls++
	if c.calls <= c.conflicts {
		return fmt.Errorf("update reviews: %w", apperrors.ErrConflict)
	}
	return c.ProductRepository.ReplaceReviews(ctx, p)
}

func TestAddReview_RetriesVersionConflict(t *testing.T) {
	repo := &conflictingRepo{ProductRepository: memory.NewProductRepository(), conflicts: 2}
	svc, _ := newTestService(t, repo)
	p := createNamed(t, svc, "")

	require.NoError(t, svc.AddReview(context.Background(), customer, p.ID, 4, ""))
	assert.Equal(t, 3, repo.calls)

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumReviews)
}

func TestAddReview_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := &conflictingRepo{ProductRepository: memory.NewProductRepository(), conflicts: 100}
	svc, _ := newTestService(t, repo)
	p := createNamed(t, svc, "")

	err := svc.AddReview(context.Background(), customer, p.ID, 4, "")
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	assert.Equal(t, DefaultReviewMaxAttempts, repo.calls)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, lock.ErrNotAcquired
}

func TestAddReview_LockFailure(t *testing.T) {
	repo := memory.NewProductRepository()
	svc := NewCatalogService(repo, failingLocker{}, event.NewProducer(pkgkafka.NopPublisher{}, testLogger()), testLogger(), Options{})
	p := createNamed(t, svc, "")

	err := svc.AddReview(context.Background(), customer, p.ID, 4, "")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "retry")
}

type brokenLocker struct{}

func (brokenLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestAddReview_LockBackendFailure(t *testing.T) {
	repo := memory.NewProductRepository()
	svc := NewCatalogService(repo, brokenLocker{}, event.NewProducer(pkgkafka.NopPublisher{}, testLogger()), testLogger(), Options{})
	p := createNamed(t, svc, "")

	err := svc.AddReview(context.Background(), customer, p.ID, 4, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

func TestStoreError(t *testing.T) {
	err := storeError("op", apperrors.ErrNotFound)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Product not found", appErr.Message)

	err = storeError("op", errors.New("boom"))
	assert.EqualError(t, err, "op: boom")

	conflict := apperrors.Conflict("x")
	assert.ErrorIs(t, storeError("op", conflict), apperrors.ErrConflict)
}
