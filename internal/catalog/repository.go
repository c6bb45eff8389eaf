package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/db"
)

type Repository interface {
	// ListCategories returns every category with its products, categories
	// and products ordered by id.
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name string) (*Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (*Category, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error)
}

type postgresRepository struct {
	db db.DB
}

func NewRepository(database db.DB) Repository {
	return &postgresRepository{db: database}
}

// checkFields maps CHECK constraint names to the input field they guard.
var checkFields = map[string]string{
	"categories_name_check":         "name",
	"products_name_check":           "name",
	"products_original_price_check": "original_price",
	"products_offer_price_check":    "offer_price",
	"products_stock_check":          "stock",
}

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(op string, categoryID int64, err error) error {
	if _, ok := db.ConstraintViolation(err, pgerrcode.ForeignKeyViolation); ok {
		return categoryNotFound(categoryID)
	}
	if _, ok := db.ConstraintViolation(err, pgerrcode.UniqueViolation); ok {
		return apperr.Invalid("name", "a category with this name already exists")
	}
	if constraint, ok := db.ConstraintViolation(err, pgerrcode.CheckViolation); ok {
		if field, known := checkFields[constraint]; known {
			return apperr.Invalid(field, "violates constraint "+constraint)
		}
	}
	// Offer price never exceeds original price, so the original overflows first.
	if db.IsOutOfRange(err) {
		return apperr.Invalid("original_price", "is too large")
	}
	return db.Wrap(op, err)
}

func (r *postgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	query := `
		SELECT c.id, c.name,
			p.id, p.name, p.original_price, p.offer_price, p.description,
			p.stock, p.quantity_label, p.image_url
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		ORDER BY c.id, p.id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, db.Wrap("query categories", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var (
			categoryID    int64
			categoryName  string
			productID     *int64
			name          *string
			originalPrice decimal.NullDecimal
			offerPrice    decimal.NullDecimal
			description   *string
			stock         *int
			quantityLabel *string
			imageURL      *string
		)
		if err := rows.Scan(&categoryID, &categoryName,
			&productID, &name, &originalPrice, &offerPrice, &description,
			&stock, &quantityLabel, &imageURL,
		); err != nil {
			return nil, db.Wrap("scan category row", err)
		}

		if n := len(categories); n == 0 || categories[n-1].ID != categoryID {
			categories = append(categories, Category{ID: categoryID, Name: categoryName, Products: make([]Product, 0)})
		}
		if productID == nil {
			continue
		}

		current := &categories[len(categories)-1]
		current.Products = append(current.Products, Product{
			ID:            *productID,
			Name:          *name,
			OriginalPrice: originalPrice.Decimal,
			OfferPrice:    offerPrice.Decimal,
			Description:   *description,
			Stock:         *stock,
			QuantityLabel: *quantityLabel,
			ImageURL:      *imageURL,
			CategoryID:    categoryID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("iterate categories", err)
	}

	return categories, nil
}

func (r *postgresRepository) CreateCategory(ctx context.Context, name string) (*Category, error) {
	c := Category{Name: name, Products: make([]Product, 0)}
	err := r.db.QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&c.ID)
	if err != nil {
		return nil, mapWriteError("insert category", 0, err)
	}
	return &c, nil
}

func (r *postgresRepository) RenameCategory(ctx context.Context, id int64, name string) (*Category, error) {
	c := Category{ID: id, Name: name, Products: make([]Product, 0)}
	err := r.db.QueryRow(ctx,
		`UPDATE categories SET name = $1, updated_at = now() WHERE id = $2 RETURNING id`,
		name, id,
	).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, categoryNotFound(id)
	}
	if err != nil {
		return nil, mapWriteError("rename category", id, err)
	}
	return &c, nil
}

const productColumns = `id, name, original_price, offer_price, description, stock, quantity_label, image_url, category_id`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.OriginalPrice,
		&p.OfferPrice,
		&p.Description,
		&p.Stock,
		&p.QuantityLabel,
		&p.ImageURL,
		&p.CategoryID,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, productNotFound(id)
	}
	if err != nil {
		return nil, db.Wrap("select product by id", err)
	}
	return p, nil
}

// lockCategory holds a key share lock on the category until the transaction
// ends so it cannot be removed or re-keyed while a product points at it.
func lockCategory(ctx context.Context, tx pgx.Tx, id int64) error {
	var found int64
	err := tx.QueryRow(ctx, `SELECT id FROM categories WHERE id = $1 FOR KEY SHARE`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return categoryNotFound(id)
	}
	if err != nil {
		return db.Wrap("lock category", err)
	}
	return nil
}

func (r *postgresRepository) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	var created *Product

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockCategory(ctx, tx, input.CategoryID); err != nil {
			return err
		}

		query := `
			INSERT INTO products (name, original_price, offer_price, description, stock, quantity_label, image_url, category_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING ` + productColumns

		p, err := scanProduct(tx.QueryRow(ctx, query,
			input.Name,
			input.OriginalPrice,
			input.OfferPrice,
			input.Description,
			input.Stock,
			input.QuantityLabel,
			input.ImageURL,
			input.CategoryID,
		))
		if err != nil {
			return mapWriteError("insert product", input.CategoryID, err)
		}

		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *postgresRepository) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	var updated *Product

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var found int64
		err := tx.QueryRow(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&found)
		if errors.Is(err, pgx.ErrNoRows) {
			return productNotFound(id)
		}
		if err != nil {
			return db.Wrap("lock product", err)
		}

		if err := lockCategory(ctx, tx, input.CategoryID); err != nil {
			return err
		}

		query := `
			UPDATE products
			SET name = $1, original_price = $2, offer_price = $3, description = $4,
				stock = $5, quantity_label = $6, image_url = $7, category_id = $8,
				updated_at = now()
			WHERE id = $9
			RETURNING ` + productColumns

		p, err := scanProduct(tx.QueryRow(ctx, query,
			input.Name,
			input.OriginalPrice,
			input.OfferPrice,
			input.Description,
			input.Stock,
			input.QuantityLabel,
			input.ImageURL,
			input.CategoryID,
			id,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return productNotFound(id)
		}
		if err != nil {
			return mapWriteError("update product", input.CategoryID, err)
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
