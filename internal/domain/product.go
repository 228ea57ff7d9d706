package domain

import (
	"time"

	"github.com/google/uuid"
)

// Placeholder values given to a freshly created product. Admins create a
// blank product first and then edit it in place.
const (
	PlaceholderName         = "Sample name"
	PlaceholderImage        = "/images/sample.jpg"
	PlaceholderBrand        = "Sample Brand"
	PlaceholderCategory     = "Sample category"
	PlaceholderDescription  = "Sample Description"
	PlaceholderPrice        = 0.0
	PlaceholderCountInStock = 0
)

// Product is a catalog item. Rating and NumReviews are derived from Reviews
// and must only be changed through AppendReview.
type Product struct {
	ID           string    `json:"_id" bson:"_id"`
	User         string    `json:"user" bson:"user"`
	Name         string    `json:"name" bson:"name"`
	Image        string    `json:"image" bson:"image"`
	Brand        string    `json:"brand" bson:"brand"`
	Category     string    `json:"category" bson:"category"`
	Description  string    `json:"description" bson:"description"`
	Price        float64   `json:"price" bson:"price"`
	CountInStock int       `json:"countInStock" bson:"countInStock"`
	Rating       float64   `json:"rating" bson:"rating"`
	NumReviews   int       `json:"numReviews" bson:"numReviews"`
	Reviews      []Review  `json:"reviews" bson:"reviews"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
	Version      int64     `json:"__v" bson:"__v"`
}

// ProductUpdate carries the seven descriptive fields an admin may overwrite.
type ProductUpdate struct {
	Name         string
	Price        float64
	Category     string
	Description  string
	Image        string
	Brand        string
	CountInStock int
}

// NewPlaceholderProduct returns a product owned by ownerID with every
// descriptive field set to its placeholder value.
func NewPlaceholderProduct(ownerID string, now time.Time) *Product {
	now = now.UTC()
	return &Product{
		ID:           uuid.New().String(),
		User:         ownerID,
		Name:         PlaceholderName,
		Image:        PlaceholderImage,
		Brand:        PlaceholderBrand,
		Category:     PlaceholderCategory,
		Description:  PlaceholderDescription,
		Price:        PlaceholderPrice,
		CountInStock: PlaceholderCountInStock,
		Reviews:      []Review{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Apply overwrites the descriptive fields. Owner, reviews and the derived
// aggregate are left alone.
func (p *Product) Apply(u ProductUpdate) {
	p.Name = u.Name
	p.Price = u.Price
	p.Category = u.Category
	p.Description = u.Description
	p.Image = u.Image
	p.Brand = u.Brand
	p.CountInStock = u.CountInStock
}

// Clone returns a deep copy of p.
func (p *Product) Clone() *Product {
	c := *p
	c.Reviews = make([]Review, len(p.Reviews))
	copy(c.Reviews, p.Reviews)
	return &c
}

// IsValidID reports whether id has the shape of a product id.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
