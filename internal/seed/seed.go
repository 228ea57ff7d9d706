// Package seed loads the sample storefront catalog into a product store.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/repository"
)

//go:embed products.json
var sampleCatalog []byte

type sampleItem struct {
	Name         string  `json:"name"`
	Image        string  `json:"image"`
	Description  string  `json:"description"`
	Brand        string  `json:"brand"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	CountInStock int     `json:"countInStock"`
}

// SampleProducts returns the descriptive fields of the bundled catalog.
func SampleProducts() ([]domain.ProductUpdate, error) {
	var raw []sampleItem
	if err := json.Unmarshal(sampleCatalog, &raw); err != nil {
		return nil, fmt.Errorf("decode sample catalog: %w", err)
	}

	items := make([]domain.ProductUpdate, 0, len(raw))
	for _, r := range raw {
		items = append(items, domain.ProductUpdate{
			Name:         r.Name,
			Price:        r.Price,
			Category:     r.Category,
			Description:  r.Description,
			Image:        r.Image,
			Brand:        r.Brand,
			CountInStock: r.CountInStock,
		})
	}
	return items, nil
}

// Import replaces the contents of store with the sample catalog, owned by
// ownerID. Products are created one second apart so list order follows the
// file.
func Import(ctx context.Context, store repository.Store, ownerID string, now time.Time) (int, error) {
	items, err := SampleProducts()
	if err != nil {
		return 0, err
	}

	if _, err := store.DeleteAll(ctx); err != nil {
		return 0, fmt.Errorf("clear products: %w", err)
	}

	for i, item := range items {
		p := domain.NewPlaceholderProduct(ownerID, now.Add(time.Duration(i)*time.Second))
		p.Apply(item)
		if err := store.Create(ctx, p); err != nil {
			return i, fmt.Errorf("create %q: %w", item.Name, err)
		}
	}
	return len(items), nil
}

// Destroy removes every product from store.
func Destroy(ctx context.Context, store repository.Store) (int64, error) {
	n, err := store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear products: %w", err)
	}
	return n, nil
}
