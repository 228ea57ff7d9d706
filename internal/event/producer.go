package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storefront/catalog/internal/domain"
	pkgkafka "github.com/storefront/catalog/pkg/kafka"
	"github.com/storefront/catalog/pkg/logger"
)

// Kafka topic constants for product domain events.
const (
	TopicProductCreated  = "storefront.product.created"
	TopicProductUpdated  = "storefront.product.updated"
	TopicProductDeleted  = "storefront.product.deleted"
	TopicProductReviewed = "storefront.product.reviewed"
)

// AggregateTypeProduct is the aggregate type of every catalog event.
const AggregateTypeProduct = "product"

// SourceCatalogService identifies events originating from this service.
const SourceCatalogService = "catalog-service"

// ProductData is the payload of product.created and product.updated.
type ProductData struct {
	ID           string  `json:"id"`
	User         string  `json:"user"`
	Name         string  `json:"name"`
	Image        string  `json:"image"`
	Brand        string  `json:"brand"`
	Category     string  `json:"category"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	CountInStock int     `json:"countInStock"`
}

// ProductDeletedData is the payload of product.deleted.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// ProductReviewedData is the payload of product.reviewed.
type ProductReviewedData struct {
	ID         string  `json:"id"`
	User       string  `json:"user"`
	Rating     int     `json:"rating"`
	NewRating  float64 `json:"productRating"`
	NumReviews int     `json:"numReviews"`
}

// Producer publishes product domain events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the catalog service.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, product.ID, productData(product))
}

// PublishProductUpdated publishes a product.updated event.
func (p *Producer) PublishProductUpdated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductUpdated, product.ID, productData(product))
}

// PublishProductDeleted publishes a product.deleted event.
func (p *Producer) PublishProductDeleted(ctx context.Context, productID string) error {
	return p.publish(ctx, TopicProductDeleted, productID, ProductDeletedData{ID: productID})
}

// PublishProductReviewed publishes a product.reviewed event carrying the
// recomputed aggregate.
func (p *Producer) PublishProductReviewed(ctx context.Context, product *domain.Product, review domain.Review) error {
	return p.publish(ctx, TopicProductReviewed, product.ID, ProductReviewedData{
		ID:         product.ID,
		User:       review.User,
		Rating:     review.Rating,
		NewRating:  product.Rating,
		NumReviews: product.NumReviews,
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeProduct, SourceCatalogService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func productData(p *domain.Product) ProductData {
	return ProductData{
		ID:           p.ID,
		User:         p.User,
		Name:         p.Name,
		Image:        p.Image,
		Brand:        p.Brand,
		Category:     p.Category,
		Description:  p.Description,
		Price:        p.Price,
		CountInStock: p.CountInStock,
	}
}
