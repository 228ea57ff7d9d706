package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/repository"
	"github.com/storefront/catalog/pkg/database"
	apperrors "github.com/storefront/catalog/pkg/errors"
)

// DefaultCollection is the collection products are stored in.
const DefaultCollection = "products"

// listOrder is the deterministic listing order shared with the other stores.
var listOrder = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// ProductRepository implements repository.Store on a MongoDB collection.
// Each product is one document with its reviews embedded.
type ProductRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ repository.Store = (*ProductRepository)(nil)

// NewProductRepository creates a MongoDB-backed product repository.
func NewProductRepository(coll *mongo.Collection) *ProductRepository {
	return &ProductRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new product document.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.InsertOne", "")
	defer func() { end(err) }()

	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict("product already exists")
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.FindOne", "{_id: ?}")
	defer func() { end(err) }()

	var p domain.Product
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	normalize(&p)
	return &p, nil
}

// List counts the matching documents and returns the requested page.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) (_ []domain.Product, _ int, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.Find", "{name: {$regex: ?, $options: i}}")
	defer func() { end(err) }()

	query := keywordFilter(filter.Keyword)

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	size := filter.PageSize
	if size <= 0 {
		size = domain.PageSize
	}
	opts := options.Find().
		SetSort(listOrder).
		SetSkip(int64(domain.Offset(filter.Page, size))).
		SetLimit(int64(size))

	products, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return products, int(total), nil
}

// TopRated returns up to limit products sorted by rating.
func (r *ProductRepository) TopRated(ctx context.Context, limit int) (_ []domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.Find", "{} sort {rating: -1}")
	defer func() { end(err) }()

	sort := append(bson.D{{Key: "rating", Value: -1}}, listOrder...)
	return r.find(ctx, bson.D{}, options.Find().SetSort(sort).SetLimit(int64(limit)))
}

// Update sets the descriptive fields and returns the updated document.
func (r *ProductRepository) Update(ctx context.Context, id string, u domain.ProductUpdate) (_ *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.FindOneAndUpdate", "{_id: ?}")
	defer func() { end(err) }()

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: u.Name},
		{Key: "price", Value: u.Price},
		{Key: "category", Value: u.Category},
		{Key: "description", Value: u.Description},
		{Key: "image", Value: u.Image},
		{Key: "brand", Value: u.Brand},
		{Key: "countInStock", Value: u.CountInStock},
		{Key: "updatedAt", Value: r.now()},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p domain.Product
	if err := r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	normalize(&p)
	return &p, nil
}

// Delete removes a product document.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.DeleteOne", "{_id: ?}")
	defer func() { end(err) }()

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ReplaceReviews writes the reviews and aggregate when __v still matches
// and increments __v in the same update.
func (r *ProductRepository) ReplaceReviews(ctx context.Context, p *domain.Product) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "products.UpdateOne", "{_id: ?, __v: ?}")
	defer func() { end(err) }()

	rating, numReviews := domain.RecomputeAggregate(p.Reviews)
	reviews := p.Reviews
	if reviews == nil {
		reviews = []domain.Review{}
	}
	now := r.now()

	filter := bson.D{{Key: "_id", Value: p.ID}, {Key: "__v", Value: p.Version}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "reviews", Value: reviews},
			{Key: "rating", Value: rating},
			{Key: "numReviews", Value: numReviews},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "__v", Value: 1}}},
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update product reviews: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: p.ID}}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if n == 0 {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConflict
	}

	p.Rating, p.NumReviews = rating, numReviews
	p.UpdatedAt = now
	p.Version++
	return nil
}

// Ping checks the primary is reachable.
func (r *ProductRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// DeleteAll removes every product document.
func (r *ProductRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *ProductRepository) find(ctx context.Context, filter any, opts *options.FindOptions) ([]domain.Product, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	products := []domain.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for i := range products {
		normalize(&products[i])
	}
	return products, nil
}

// keywordFilter matches names containing keyword, ignoring case. The
// keyword is quoted so it never acts as a pattern.
func keywordFilter(keyword string) bson.D {
	if keyword == "" {
		return bson.D{}
	}
	return bson.D{{Key: "name", Value: primitive.Regex{Pattern: regexp.QuoteMeta(keyword), Options: "i"}}}
}

func normalize(p *domain.Product) {
	if p.Reviews == nil {
		p.Reviews = []domain.Review{}
	}
}
