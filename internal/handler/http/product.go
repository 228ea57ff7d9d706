package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/internal/service"
	"github.com/storefront/catalog/pkg/httputil"
	"github.com/storefront/catalog/pkg/validator"
)

// Response messages for acknowledgement-only endpoints.
const (
	msgProductDeleted = "Product deleted"
	msgReviewAdded    = "Review added"
)

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// UpdateProductRequest is the JSON request body for updating a product.
// Every descriptive field is overwritten, so name, price and stock must be sent.
type UpdateProductRequest struct {
	Name         string   `json:"name" validate:"required,max=500"`
	Price        *float64 `json:"price" validate:"required,gte=0"`
	Description  string   `json:"description"`
	Image        string   `json:"image"`
	Brand        string   `json:"brand" validate:"max=200"`
	Category     string   `json:"category" validate:"max=200"`
	CountInStock *int     `json:"countInStock" validate:"required,gte=0"`
}

func (req UpdateProductRequest) toDomain() domain.ProductUpdate {
	return domain.ProductUpdate{
		Name:         req.Name,
		Price:        *req.Price,
		Description:  req.Description,
		Image:        req.Image,
		Brand:        req.Brand,
		Category:     req.Category,
		CountInStock: *req.CountInStock,
	}
}

// CreateReviewRequest is the JSON request body for reviewing a product.
type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// --- Handlers ---

// ListProducts handles GET /api/products?keyword=&pageNumber=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.service.ListProducts(r.Context(), q.Get("keyword"), pageNumber(q.Get("pageNumber")))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// pageNumber parses the requested page. Anything that is not a positive
// integer selects the first page.
func pageNumber(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// TopProducts handles GET /api/products/top
func (h *ProductHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.TopRatedProducts(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, products)
}

// GetProduct handles GET /api/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, product)
}

// CreateProduct handles POST /api/products. The body is ignored; a placeholder
// product owned by the caller is created and then edited with UpdateProduct.
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.CreateProduct(r.Context(), principalFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), principalFromRequest(r), chi.URLParam(r, "id"), req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), principalFromRequest(r), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, msgProductDeleted)
}

// CreateReview handles POST /api/products/{id}/reviews
func (h *ProductHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	err := h.service.AddReview(r.Context(), principalFromRequest(r), chi.URLParam(r, "id"), req.Rating, req.Comment)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusCreated, msgReviewAdded)
}
