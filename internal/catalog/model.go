// Package catalog manages categories and the products that belong to them.
//
// The nested category read is the only source of product listings; the flat
// product view is computed from it on every call so the two cannot disagree.
package catalog

import (
	"github.com/shopspring/decimal"
)

type Category struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	OfferPrice    decimal.Decimal `json:"offer_price"`
	Description   string          `json:"description"`
	Stock         int             `json:"stock"`
	QuantityLabel string          `json:"quantity_label"`
	ImageURL      string          `json:"image_url"`
	CategoryID    int64           `json:"category_id"`
}

// ProductInput holds every editable product field. An update replaces all of
// them at once.
type ProductInput struct {
	Name          string
	OriginalPrice decimal.Decimal
	OfferPrice    decimal.Decimal
	Description   string
	Stock         int
	QuantityLabel string
	ImageURL      string
	CategoryID    int64
}

type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProductView is a product as it appears in the flat listing.
type ProductView struct {
	Product
	Category CategoryRef `json:"category"`
}
