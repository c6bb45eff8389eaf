package order

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/db"
)

type Service interface {
	CreateOrder(ctx context.Context, input NewOrder) (*Order, error)
	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, date time.Time, status *Status) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, next Status) (*Order, error)
	DailySummary(ctx context.Context, date time.Time) (*DailySummary, error)
}

type Option func(*service)

// WithTaxRate sets the rate applied to the subtotal of new orders.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(s *service) { s.taxRate = rate }
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	orderRepo Repository
	validate  *validator.Validate
	taxRate   decimal.Decimal
	loc       *time.Location
	now       func() time.Time
}

func NewService(orderRepo Repository, opts ...Option) Service {
	s := &service{
		orderRepo: orderRepo,
		validate:  validator.New(),
		taxRate:   decimal.Zero,
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateOrder(ctx context.Context, input NewOrder) (*Order, error) {
	if err := s.validateNewOrder(input); err != nil {
		log.Warn().Err(err).Msg("service: rejected new order")
		return nil, err
	}

	subtotal := decimal.Zero
	items := make([]OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		item.ID = 0
		item.OrderID = 0
		item.ProductName = strings.TrimSpace(item.ProductName)
		item.PriceAtPurchase = item.PriceAtPurchase.Round(2)
		subtotal = subtotal.Add(item.LineTotal())
		items = append(items, item)
	}

	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(s.taxRate).Round(2)
	discount := input.Discount.Round(2)

	// Tax and total are both bounded by subtotal plus tax.
	if !db.AmountFits(subtotal.Add(tax)) {
		return nil, apperr.Invalid("items", "order amount is too large")
	}
	if discount.GreaterThan(subtotal.Add(tax)) {
		return nil, apperr.Invalid("discount", fmt.Sprintf("must not exceed subtotal plus tax (%s)", subtotal.Add(tax).StringFixed(2)))
	}

	o := &Order{
		Customer: trimCustomer(input.Customer),
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(tax).Sub(discount),
		Status:   StatusPending,
		Items:    items,
		PlacedAt: s.now().UTC(),
	}

	if err := s.orderRepo.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Int64("order_id", o.ID).Str("total", o.Total.StringFixed(2)).Msg("service: order created")
	return o, nil
}

func (s *service) validateNewOrder(input NewOrder) error {
	c := input.Customer
	switch {
	case strings.TrimSpace(c.FirstName) == "":
		return apperr.Invalid("customer.first_name", "is required")
	case strings.TrimSpace(c.LastName) == "":
		return apperr.Invalid("customer.last_name", "is required")
	case s.validate.Var(strings.TrimSpace(c.Email), "required,email") != nil:
		return apperr.Invalid("customer.email", "must be a valid email address")
	}

	if len(input.Items) == 0 {
		return apperr.Invalid("items", "order must contain at least one item")
	}

	for i, item := range input.Items {
		switch {
		case strings.TrimSpace(item.ProductName) == "":
			return apperr.Invalid(fmt.Sprintf("items[%d].product_name", i), "is required")
		case item.Quantity <= 0:
			return apperr.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		case item.Quantity > db.MaxInteger:
			return apperr.Invalid(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must not exceed %d", db.MaxInteger))
		case item.PriceAtPurchase.IsNegative():
			return apperr.Invalid(fmt.Sprintf("items[%d].price_at_purchase", i), "must not be negative")
		case !db.AmountFits(item.PriceAtPurchase):
			return apperr.Invalid(fmt.Sprintf("items[%d].price_at_purchase", i), "is too large")
		}
	}

	switch {
	case input.Discount.IsNegative():
		return apperr.Invalid("discount", "must not be negative")
	case !db.AmountFits(input.Discount):
		return apperr.Invalid("discount", "is too large")
	}

	return nil
}

func trimCustomer(c Customer) Customer {
	return Customer{
		FirstName:  strings.TrimSpace(c.FirstName),
		LastName:   strings.TrimSpace(c.LastName),
		Email:      strings.TrimSpace(c.Email),
		Phone:      strings.TrimSpace(c.Phone),
		Address:    strings.TrimSpace(c.Address),
		City:       strings.TrimSpace(c.City),
		Province:   strings.TrimSpace(c.Province),
		PostalCode: strings.TrimSpace(c.PostalCode),
	}
}

func (s *service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", id).Msg("service: order not found by id")
			return nil, err
		}

		log.Error().Err(err).Int64("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

// dayRange returns the bounds of the calendar day of date in the service
// time zone. Only the year, month and day of date are used.
func (s *service) dayRange(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, 1)
}

func (s *service) ListOrders(ctx context.Context, date time.Time, status *Status) ([]Order, error) {
	if status != nil && !status.Valid() {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %s", status))
	}

	from, to := s.dayRange(date)
	orders, err := s.orderRepo.List(ctx, ListFilter{From: from, To: to, Status: status})
	if err != nil {
		log.Error().Err(err).Time("from", from).Time("to", to).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	slices.SortStableFunc(orders, compareByTotalDesc)
	return orders, nil
}

func compareByTotalDesc(a, b Order) int {
	if c := b.Total.Cmp(a.Total); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

func (s *service) UpdateStatus(ctx context.Context, id int64, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %s", next))
	}

	current, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", id).Stringer("to_status", next).Msg("service: order not found, cannot update status")
			return nil, err
		}
		log.Error().Err(err).Int64("order_id", id).Msg("service: failed to get order for status update")
		return nil, fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if !current.Status.CanTransitionTo(next) {
		log.Warn().
			Int64("order_id", id).
			Stringer("from_status", current.Status).
			Stringer("to_status", next).
			Msg("service: invalid status transition attempt")
		return nil, &InvalidTransitionError{OrderID: id, From: current.Status, To: next}
	}

	// A lost race is retried from the winning status while that status still
	// allows next. Statuses only move forward, so the loop ends.
	expected := current.Status
	for attempt := 0; ; attempt++ {
		updated, err := s.orderRepo.UpdateStatus(ctx, id, expected, next)
		if err == nil {
			log.Info().
				Int64("order_id", id).
				Stringer("from_status", expected).
				Stringer("to_status", next).
				Msg("service: order status updated")
			return updated, nil
		}

		var conflict *StatusConflictError
		switch {
		case errors.As(err, &conflict):
			if conflict.Current != expected && conflict.Current.CanTransitionTo(next) && attempt < len(Statuses) {
				log.Debug().
					Int64("order_id", id).
					Stringer("from_status", conflict.Current).
					Stringer("to_status", next).
					Msg("service: order status changed concurrently, retrying from new status")
				expected = conflict.Current
				continue
			}
			log.Warn().
				Int64("order_id", id).
				Stringer("from_status", conflict.Current).
				Stringer("to_status", next).
				Msg("service: order status changed concurrently")
			return nil, &InvalidTransitionError{OrderID: id, From: conflict.Current, To: next, Concurrent: true}
		case errors.Is(err, ErrOrderNotFound):
			return nil, err
		default:
			log.Error().Err(err).Int64("order_id", id).Stringer("to_status", next).Msg("service: failed to update order status in repository")
			return nil, fmt.Errorf("service: failed to update order status: %w", err)
		}
	}
}

func (s *service) DailySummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	orders, err := s.ListOrders(ctx, date, nil)
	if err != nil {
		return nil, err
	}

	from, _ := s.dayRange(date)
	summary := &DailySummary{
		Date:     from.Format(time.DateOnly),
		Orders:   len(orders),
		ByStatus: make(map[Status]int, len(Statuses)),
		Revenue:  decimal.Zero,
	}
	for _, status := range Statuses {
		summary.ByStatus[status] = 0
	}

	for _, o := range orders {
		summary.ByStatus[o.Status]++
		if o.Status != StatusCancelled {
			summary.Revenue = summary.Revenue.Add(o.Total)
		}
	}

	return summary, nil
}
