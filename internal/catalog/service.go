package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/db"
)

type Service interface {
	ListCategories(ctx context.Context) ([]Category, error)
	// ListProducts flattens ListCategories. A nil categoryID lists every
	// product; otherwise the category must exist.
	ListProducts(ctx context.Context, categoryID *int64) ([]ProductView, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	CreateCategory(ctx context.Context, name string) (*Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (*Category, error)
	CreateProduct(ctx context.Context, input ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list categories in repository")
		return nil, fmt.Errorf("service: failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *service) ListProducts(ctx context.Context, categoryID *int64) ([]ProductView, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	return flatten(categories, categoryID)
}

func flatten(categories []Category, categoryID *int64) ([]ProductView, error) {
	views := make([]ProductView, 0)
	found := categoryID == nil

	for _, c := range categories {
		if categoryID != nil && c.ID != *categoryID {
			continue
		}
		found = true

		ref := CategoryRef{ID: c.ID, Name: c.Name}
		for _, p := range c.Products {
			views = append(views, ProductView{Product: p, Category: ref})
		}
	}

	if !found {
		return nil, categoryNotFound(*categoryID)
	}
	return views, nil
}

func (s *service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			log.Warn().Int64("product_id", id).Msg("service: product not found by id")
			return nil, err
		}
		log.Error().Err(err).Int64("product_id", id).Msg("service: failed to fetch product in repository")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}
	return p, nil
}

func normalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid("name", "is required")
	}
	return name, nil
}

func (s *service) CreateCategory(ctx context.Context, name string) (*Category, error) {
	name, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.CreateCategory(ctx, name)
	if err != nil {
		return nil, writeError(err, "create category", log.Warn().Str("name", name))
	}

	log.Info().Int64("category_id", c.ID).Str("name", c.Name).Msg("service: category created")
	return c, nil
}

func (s *service) RenameCategory(ctx context.Context, id int64, name string) (*Category, error) {
	name, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.RenameCategory(ctx, id, name)
	if err != nil {
		return nil, writeError(err, "rename category", log.Warn().Int64("category_id", id))
	}

	log.Info().Int64("category_id", c.ID).Str("name", c.Name).Msg("service: category renamed")
	return c, nil
}

// validateProduct trims the text fields of input and checks every rule that
// does not need the store.
func validateProduct(input ProductInput) (ProductInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.QuantityLabel = strings.TrimSpace(input.QuantityLabel)
	input.ImageURL = strings.TrimSpace(input.ImageURL)
	input.OriginalPrice = input.OriginalPrice.Round(2)
	input.OfferPrice = input.OfferPrice.Round(2)

	switch {
	case input.Name == "":
		return input, apperr.Invalid("name", "is required")
	case input.OriginalPrice.IsNegative():
		return input, apperr.Invalid("original_price", "must not be negative")
	case !db.AmountFits(input.OriginalPrice):
		return input, apperr.Invalid("original_price", "is too large")
	case input.OfferPrice.IsNegative():
		return input, apperr.Invalid("offer_price", "must not be negative")
	case input.OfferPrice.GreaterThan(input.OriginalPrice):
		return input, apperr.Invalid("offer_price", fmt.Sprintf("must not exceed original price (%s)", input.OriginalPrice.StringFixed(2)))
	case input.Stock < 0:
		return input, apperr.Invalid("stock", "must not be negative")
	case input.Stock > db.MaxInteger:
		return input, apperr.Invalid("stock", fmt.Sprintf("must not exceed %d", db.MaxInteger))
	case input.CategoryID <= 0:
		// No category has such an id.
		return input, categoryNotFound(input.CategoryID)
	}

	return input, nil
}

func (s *service) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	input, err := validateProduct(input)
	if err != nil {
		log.Warn().Err(err).Msg("service: rejected new product")
		return nil, err
	}

	p, err := s.repo.CreateProduct(ctx, input)
	if err != nil {
		return nil, writeError(err, "create product", log.Warn().Int64("category_id", input.CategoryID))
	}

	log.Info().Int64("product_id", p.ID).Int64("category_id", p.CategoryID).Msg("service: product created")
	return p, nil
}

func (s *service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	input, err := validateProduct(input)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", id).Msg("service: rejected product update")
		return nil, err
	}

	p, err := s.repo.UpdateProduct(ctx, id, input)
	if err != nil {
		return nil, writeError(err, "update product", log.Warn().Int64("product_id", id).Int64("category_id", input.CategoryID))
	}

	log.Info().Int64("product_id", p.ID).Int64("category_id", p.CategoryID).Msg("service: product updated")
	return p, nil
}

// writeError logs a failed write and passes domain errors through unchanged.
func writeError(err error, op string, event *zerolog.Event) error {
	var vErr *apperr.ValidationError
	if errors.Is(err, apperr.ErrNotFound) || errors.As(err, &vErr) {
		event.Err(err).Msgf("service: cannot %s", op)
		return err
	}
	event.Discard()

	log.Error().Err(err).Msgf("service: failed to %s in repository", op)
	return fmt.Errorf("service: failed to %s: %w", op, err)
}
