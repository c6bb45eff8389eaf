package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/db"
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateStatus moves the order from expected to next in one conditional
	// update. It returns *StatusConflictError when the stored status is not
	// expected and ErrOrderNotFound when the order does not exist.
	UpdateStatus(ctx context.Context, id int64, expected, next Status) (*Order, error)
}

type postgresRepository struct {
	db db.DB
}

func NewRepository(database db.DB) Repository {
	return &postgresRepository{db: database}
}

const orderColumns = `id, first_name, last_name, email, phone, address, city, province, postal_code,
	subtotal, tax, discount, total, status, placed_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.Customer.FirstName,
		&o.Customer.LastName,
		&o.Customer.Email,
		&o.Customer.Phone,
		&o.Customer.Address,
		&o.Customer.City,
		&o.Customer.Province,
		&o.Customer.PostalCode,
		&o.Subtotal,
		&o.Tax,
		&o.Discount,
		&o.Total,
		&status,
		&o.PlacedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if o.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	o.Items = make([]OrderItem, 0)

	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		queryOrder := `
			INSERT INTO orders (first_name, last_name, email, phone, address, city, province, postal_code,
				subtotal, tax, discount, total, status, placed_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
			RETURNING id, updated_at
		`
		err := tx.QueryRow(ctx, queryOrder,
			o.Customer.FirstName,
			o.Customer.LastName,
			o.Customer.Email,
			o.Customer.Phone,
			o.Customer.Address,
			o.Customer.City,
			o.Customer.Province,
			o.Customer.PostalCode,
			o.Subtotal,
			o.Tax,
			o.Discount,
			o.Total,
			o.Status.String(),
			o.PlacedAt,
		).Scan(&o.ID, &o.UpdatedAt)
		if db.IsOutOfRange(err) {
			return apperr.Invalid("items", "order amount is too large")
		}
		if err != nil {
			return db.Wrap("insert order", err)
		}

		queryItem := `
			INSERT INTO order_items (order_id, position, product_name, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`
		for i := range o.Items {
			item := &o.Items[i]
			item.OrderID = o.ID

			err := tx.QueryRow(ctx, queryItem, o.ID, i, item.ProductName, item.Quantity, item.PriceAtPurchase).Scan(&item.ID)
			if db.IsOutOfRange(err) {
				return apperr.Invalid(fmt.Sprintf("items[%d].price_at_purchase", i), "is too large")
			}
			if err != nil {
				return db.Wrap("insert order item", err)
			}
		}

		return nil
	})
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, db.Wrap("select order by id", err)
	}

	if err := r.loadItems(ctx, r.db, map[int64]*Order{o.ID: o}); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE placed_at >= $1 AND placed_at < $2
		  AND ($3::text IS NULL OR status = $3)
		ORDER BY total DESC, id ASC
	`

	var status *string
	if filter.Status != nil {
		s := filter.Status.String()
		status = &s
	}

	rows, err := r.db.Query(ctx, query, filter.From, filter.To, status)
	if err != nil {
		return nil, db.Wrap("query orders", err)
	}
	defer rows.Close()

	ordersMap := make(map[int64]*Order)
	orders := make([]*Order, 0)

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, db.Wrap("scan order", err)
		}
		ordersMap[o.ID] = o
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("iterate orders", err)
	}

	if err := r.loadItems(ctx, r.db, ordersMap); err != nil {
		return nil, err
	}

	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, *o)
	}

	return result, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id int64, expected, next Status) (*Order, error) {
	var updated *Order

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE orders
			SET status = $1, updated_at = now()
			WHERE id = $2 AND status = $3
			RETURNING ` + orderColumns

		o, err := scanOrder(tx.QueryRow(ctx, query, next.String(), id, expected.String()))
		if err == nil {
			updated = o
			return r.loadItems(ctx, tx, map[int64]*Order{o.ID: o})
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Wrap("update order status", err)
		}

		var current string
		err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return db.Wrap("select order status", err)
		}

		currentStatus, err := ParseStatus(current)
		if err != nil {
			return db.Wrap("parse order status", err)
		}

		log.Warn().
			Int64("order_id", id).
			Stringer("expected_status", expected).
			Stringer("current_status", currentStatus).
			Msg("repository: order status changed before update")
		return &StatusConflictError{OrderID: id, Current: currentStatus}
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *postgresRepository) loadItems(ctx context.Context, q querier, orders map[int64]*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	for id := range orders {
		ids = append(ids, id)
	}

	query := `
		SELECT id, order_id, product_name, quantity, price_at_purchase
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return db.Wrap("query order items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductName, &item.Quantity, &item.PriceAtPurchase); err != nil {
			return db.Wrap("scan order item", err)
		}
		if o, ok := orders[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return db.Wrap("iterate order items", err)
	}

	return nil
}
