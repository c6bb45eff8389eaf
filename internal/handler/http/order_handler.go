package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/order"
)

type CustomerRequest struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

type OrderItemRequest struct {
	ProductName     string          `json:"product_name" validate:"required"`
	Quantity        int             `json:"quantity" validate:"gt=0"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

type CreateOrderRequest struct {
	Customer CustomerRequest    `json:"customer"`
	Items    []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount decimal.Decimal    `json:"discount"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderItemResponse struct {
	ID              int64  `json:"id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
	LineTotal       string `json:"line_total"`
}

type OrderResponse struct {
	ID        int64               `json:"id"`
	Customer  order.Customer      `json:"customer"`
	Subtotal  string              `json:"subtotal"`
	Tax       string              `json:"tax"`
	Discount  string              `json:"discount"`
	Total     string              `json:"total"`
	Status    string              `json:"status"`
	Items     []OrderItemResponse `json:"items"`
	PlacedAt  time.Time           `json:"placed_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type DailySummaryResponse struct {
	Date     string         `json:"date"`
	Orders   int            `json:"orders"`
	ByStatus map[string]int `json:"by_status"`
	Revenue  string         `json:"revenue"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ID:              item.ID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.StringFixed(2),
			LineTotal:       item.LineTotal().StringFixed(2),
		})
	}

	return OrderResponse{
		ID:        o.ID,
		Customer:  o.Customer,
		Subtotal:  o.Subtotal.StringFixed(2),
		Tax:       o.Tax.StringFixed(2),
		Discount:  o.Discount.StringFixed(2),
		Total:     o.Total.StringFixed(2),
		Status:    o.Status.String(),
		Items:     items,
		PlacedAt:  o.PlacedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/summary", h.handleDailySummary)
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Put("/orders/{id}/status", h.handleUpdateStatus)
}

func parseDateQuery(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Time{}, apperr.Invalid("date", "is required (YYYY-MM-DD)")
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperr.Invalid("date", "must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateQuery(r)
	if err != nil {
		respondWithDomainError(w, err, "Failed to list orders")
		return
	}

	var status *order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := order.ParseStatus(raw)
		if err != nil {
			respondWithDomainError(w, apperr.Invalid("status", err.Error()), "Failed to list orders")
			return
		}
		status = &parsed
	}

	orders, err := h.service.ListOrders(r.Context(), date, status)
	if err != nil {
		respondWithDomainError(w, err, "Failed to list orders")
		return
	}

	response := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		response = append(response, toOrderResponse(&orders[i]))
	}

	respondWithJSON(w, http.StatusOK, response)
}

func (h *OrderHandler) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateQuery(r)
	if err != nil {
		respondWithDomainError(w, err, "Failed to build daily summary")
		return
	}

	summary, err := h.service.DailySummary(r.Context(), date)
	if err != nil {
		respondWithDomainError(w, err, "Failed to build daily summary")
		return
	}

	byStatus := make(map[string]int, len(summary.ByStatus))
	for status, count := range summary.ByStatus {
		byStatus[status.String()] = count
	}

	respondWithJSON(w, http.StatusOK, DailySummaryResponse{
		Date:     summary.Date,
		Orders:   summary.Orders,
		ByStatus: byStatus,
		Revenue:  summary.Revenue.StringFixed(2),
	})
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithBadPayload(w, err)
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	c := requestPayload.Customer
	input := order.NewOrder{
		Customer: order.Customer{
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Email:      c.Email,
			Phone:      c.Phone,
			Address:    c.Address,
			City:       c.City,
			Province:   c.Province,
			PostalCode: c.PostalCode,
		},
		Items:    make([]order.OrderItem, 0, len(requestPayload.Items)),
		Discount: requestPayload.Discount,
	}
	for _, item := range requestPayload.Items {
		input.Items = append(input.Items, order.OrderItem{
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}

	created, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		respondWithDomainError(w, err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		log.Warn().Err(err).Str("order_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		respondWithDomainError(w, err, "Failed to get order")
		return
	}

	found, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		respondWithDomainError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(found))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		log.Warn().Err(err).Str("order_id", chi.URLParam(r, "id")).Msg("Failed to parse id parameter from URL")
		respondWithDomainError(w, err, "Failed to update order status")
		return
	}

	var requestPayload UpdateStatusRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithBadPayload(w, err)
		return
	}
	if err := h.validate.Struct(requestPayload); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	next, err := order.ParseStatus(requestPayload.Status)
	if err != nil {
		respondWithDomainError(w, apperr.Invalid("status", err.Error()), "Failed to update order status")
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), orderID, next)
	if err != nil {
		respondWithDomainError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(updated))
}
