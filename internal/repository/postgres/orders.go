package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-gate/internal/domain"
	"github.com/kirinyoku/tix-gate/internal/repository"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, buyer_name, buyer_email, buyer_phone, quantity,
	unit_price::text, total_price::text, payment_status,
	provider_payment_id, provider_status, COALESCE(access_token, ''),
	created_at, updated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) With(db DB) *OrderRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a new order row.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	const op = "postgresrepo.OrderRepo.Create"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO orders(id, buyer_name, buyer_email, buyer_phone, quantity,
		 	unit_price, total_price, payment_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $9)`,
		o.ID, o.BuyerName, o.BuyerEmail, o.BuyerPhone, o.Quantity,
		o.UnitPrice.String(), o.TotalPrice.String(), o.PaymentStatus, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves an order by id.
//
// Returns:
//   - error: repository.ErrNotFound if the order does not exist.
func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.Get"

	o, err := scanOrder(r.handle().QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return o, nil
}

// GetForUpdate retrieves an order and locks its row until the surrounding
// transaction ends. Only meaningful on a transaction handle.
func (r *OrderRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.GetForUpdate"

	o, err := scanOrder(r.handle().QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return o, nil
}

func (r *OrderRepo) GetByToken(ctx context.Context, token string) (*domain.Order, error) {
	const op = "postgresrepo.OrderRepo.GetByToken"

	o, err := scanOrder(r.handle().QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE access_token = $1`,
		token,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return o, nil
}

// UpdatePayment is the compare-and-swap write of the reconciliation path:
// a COMPLETED order is never touched.
//
// Returns:
//   - error: repository.ErrStateChanged if the order is COMPLETED or missing.
func (r *OrderRepo) UpdatePayment(
	ctx context.Context,
	id uuid.UUID,
	status domain.PaymentStatus,
	providerPaymentID string,
	providerStatus string,
) error {
	const op = "postgresrepo.OrderRepo.UpdatePayment"

	tag, err := r.handle().Exec(ctx,
		`UPDATE orders
		 SET payment_status = $2,
		 	provider_payment_id = COALESCE(NULLIF($3, ''), provider_payment_id),
		 	provider_status = $4,
		 	updated_at = now()
		 WHERE id = $1 AND payment_status <> 'COMPLETED'`,
		id, status, providerPaymentID, providerStatus,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	return nil
}

// SetAccessTokenIfAbsent writes token only when the order has none and
// returns whichever token is stored afterwards.
func (r *OrderRepo) SetAccessTokenIfAbsent(ctx context.Context, id uuid.UUID, token string) (string, error) {
	const op = "postgresrepo.OrderRepo.SetAccessTokenIfAbsent"

	var stored string
	err := r.handle().QueryRow(ctx,
		`UPDATE orders
		 SET access_token = COALESCE(access_token, $2)
		 WHERE id = $1
		 RETURNING access_token`,
		id, token,
	).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return stored, nil
}

// ListPending lists PENDING orders created within the window, oldest first.
func (r *OrderRepo) ListPending(
	ctx context.Context,
	createdAfter, createdBefore time.Time,
	limit int,
) ([]domain.Order, error) {
	const op = "postgresrepo.OrderRepo.ListPending"

	rows, err := r.handle().Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE payment_status = 'PENDING'
		 	AND created_at >= $1
		 	AND created_at <= $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		createdAfter, createdBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o          domain.Order
		unit, tot  string
		statusText string
	)

	err := row.Scan(
		&o.ID, &o.BuyerName, &o.BuyerEmail, &o.BuyerPhone, &o.Quantity,
		&unit, &tot, &statusText,
		&o.ProviderPaymentID, &o.ProviderStatus, &o.AccessToken,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.PaymentStatus = domain.PaymentStatus(statusText)

	if o.UnitPrice, err = decimal.NewFromString(unit); err != nil {
		return nil, fmt.Errorf("unit_price: %w", err)
	}
	if o.TotalPrice, err = decimal.NewFromString(tot); err != nil {
		return nil, fmt.Errorf("total_price: %w", err)
	}

	return &o, nil
}
