package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/catalog"
)

type CategoryRequest struct {
	Name string `json:"name" validate:"required"`
}

type ProductRequest struct {
	Name          string          `json:"name" validate:"required"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	OfferPrice    decimal.Decimal `json:"offer_price"`
	Description   string          `json:"description"`
	Stock         int             `json:"stock" validate:"gte=0"`
	QuantityLabel string          `json:"quantity_label"`
	ImageURL      string          `json:"image_url" validate:"omitempty,url"`
	CategoryID    *int64          `json:"category_id" validate:"required"`
}

type ProductResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	OriginalPrice string `json:"original_price"`
	OfferPrice    string `json:"offer_price"`
	Description   string `json:"description"`
	Stock         int    `json:"stock"`
	QuantityLabel string `json:"quantity_label"`
	ImageURL      string `json:"image_url"`
	CategoryID    int64  `json:"category_id"`
}

type ProductViewResponse struct {
	ProductResponse
	Category catalog.CategoryRef `json:"category"`
}

type CategoryResponse struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Products []ProductResponse `json:"products"`
}

func toProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		OriginalPrice: p.OriginalPrice.StringFixed(2),
		OfferPrice:    p.OfferPrice.StringFixed(2),
		Description:   p.Description,
		Stock:         p.Stock,
		QuantityLabel: p.QuantityLabel,
		ImageURL:      p.ImageURL,
		CategoryID:    p.CategoryID,
	}
}

func toCategoryResponse(c *catalog.Category) CategoryResponse {
	products := make([]ProductResponse, 0, len(c.Products))
	for i := range c.Products {
		products = append(products, toProductResponse(&c.Products[i]))
	}
	return CategoryResponse{ID: c.ID, Name: c.Name, Products: products}
}

func (p ProductRequest) toInput() catalog.ProductInput {
	return catalog.ProductInput{
		Name:          p.Name,
		OriginalPrice: p.OriginalPrice,
		OfferPrice:    p.OfferPrice,
		Description:   p.Description,
		Stock:         p.Stock,
		QuantityLabel: p.QuantityLabel,
		ImageURL:      p.ImageURL,
		CategoryID:    *p.CategoryID,
	}
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/categories", h.handleListCategories)
	router.Post("/categories", h.handleCreateCategory)
	router.Put("/categories/{id}", h.handleRenameCategory)
	router.Get("/products", h.handleListProducts)
	router.Post("/products", h.handleCreateProduct)
	router.Get("/products/{id}", h.handleGetProduct)
	router.Put("/products/{id}", h.handleUpdateProduct)
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		respondWithDomainError(w, err, "Failed to list categories")
		return
	}

	response := make([]CategoryResponse, 0, len(categories))
	for i := range categories {
		response = append(response, toCategoryResponse(&categories[i]))
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *CatalogHandler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var requestPayload CategoryRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithBadPayload(w, err)
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	created, err := h.service.CreateCategory(r.Context(), requestPayload.Name)
	if err != nil {
		respondWithDomainError(w, err, "Failed to create category")
		return
	}

	respondWithJSON(w, http.StatusCreated, toCategoryResponse(created))
}

func (h *CatalogHandler) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := parseIDParam(r, "id")
	if err != nil {
		log.Warn().Err(err).Str("category_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		respondWithDomainError(w, err, "Failed to rename category")
		return
	}

	var requestPayload CategoryRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithBadPayload(w, err)
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	renamed, err := h.service.RenameCategory(r.Context(), categoryID, requestPayload.Name)
	if err != nil {
		respondWithDomainError(w, err, "Failed to rename category")
		return
	}

	respondWithJSON(w, http.StatusOK, toCategoryResponse(renamed))
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	var categoryID *int64
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondWithDomainError(w, apperr.Invalid("category_id", "must be a positive integer"), "Failed to list products")
			return
		}
		categoryID = &id
	}

	views, err := h.service.ListProducts(r.Context(), categoryID)
	if err != nil {
		respondWithDomainError(w, err, "Failed to list products")
		return
	}

	response := make([]ProductViewResponse, 0, len(views))
	for i := range views {
		response = append(response, ProductViewResponse{
			ProductResponse: toProductResponse(&views[i].Product),
			Category:        views[i].Category,
		})
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := parseIDParam(r, "id")
	if err != nil {
		log.Warn().Err(err).Str("product_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		respondWithDomainError(w, err, "Failed to get product")
		return
	}

	found, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		respondWithDomainError(w, err, "Failed to get product")
		return
	}

	respondWithJSON(w, http.StatusOK, toProductResponse(found))
}

func (h *CatalogHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var requestPayload ProductRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithBadPayload(w, err)
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	created, err := h.service.CreateProduct(r.Context(), requestPayload.toInput())
	if err != nil {
		respondWithProductWriteError(w, err, "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, toProductResponse(created))
}

func (h *CatalogHandler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := parseIDParam(r, "id")
	if err != nil {
		log.Warn().Err(err).Str("product_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		respondWithDomainError(w, err, "Failed to update product")
		return
	}

	var requestPayload ProductRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithBadPayload(w, err)
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	updated, err := h.service.UpdateProduct(r.Context(), productID, requestPayload.toInput())
	if err != nil {
		respondWithProductWriteError(w, err, "Failed to update product")
		return
	}

	respondWithJSON(w, http.StatusOK, toProductResponse(updated))
}

// respondWithProductWriteError reports a missing category against the
// category_id field of the request body.
func respondWithProductWriteError(w http.ResponseWriter, err error, fallback string) {
	if !errors.Is(err, catalog.ErrCategoryNotFound) {
		respondWithDomainError(w, err, fallback)
		return
	}

	respondWithJSON(w, http.StatusNotFound, ErrorResponse{
		Error: err.Error(),
		Code:  CodeCategoryNotFound,
		Field: "category_id",
	})
}
