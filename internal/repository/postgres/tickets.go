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
)

const ticketColumns = `id, order_id, code, credential_hash, status,
	validated_at, created_at, updated_at`

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// BatchCreate inserts all tickets of one order in a single round trip.
func (r *TicketRepo) BatchCreate(ctx context.Context, tickets []domain.Ticket) error {
	const op = "postgresrepo.TicketRepo.BatchCreate"

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets(id, order_id, code, credential_hash, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			t.ID, t.OrderID, t.Code, t.CredentialHash, t.Status, t.CreatedAt,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.ListByOrder"

	rows, err := r.handle().Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE order_id = $1
		 ORDER BY code`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// Resolve looks a ticket up by its scannable credential or, failing that,
// by its human-readable code.
//
// Returns:
//   - error: repository.ErrNotFound if neither matches.
func (r *TicketRepo) Resolve(ctx context.Context, code string) (*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.Resolve"

	t, err := scanTicket(r.handle().QueryRow(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE credential_hash = $1 OR code = upper($1)
		 LIMIT 1`,
		code,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

func (r *TicketRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.GetForUpdate"

	t, err := scanTicket(r.handle().QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

func (r *TicketRepo) TransitionByOrder(
	ctx context.Context,
	orderID uuid.UUID,
	from []domain.TicketStatus,
	to domain.TicketStatus,
) (int64, error) {
	const op = "postgresrepo.TicketRepo.TransitionByOrder"

	fromText := make([]string, len(from))
	for i, s := range from {
		fromText[i] = string(s)
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE tickets
		 SET status = $3, updated_at = now()
		 WHERE order_id = $1 AND status = ANY($2)`,
		orderID, fromText, to,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// MarkValidated is the compare-and-swap write of the validation gate.
//
// Returns:
//   - error: repository.ErrStateChanged if the ticket is not PAID.
func (r *TicketRepo) MarkValidated(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "postgresrepo.TicketRepo.MarkValidated"

	tag, err := r.handle().Exec(ctx,
		`UPDATE tickets
		 SET status = 'VALIDATED', validated_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'PAID'`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%s:%w", op, repository.ErrStateChanged)
	}

	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t          domain.Ticket
		statusText string
	)

	if err := row.Scan(
		&t.ID, &t.OrderID, &t.Code, &t.CredentialHash, &statusText,
		&t.ValidatedAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = domain.TicketStatus(statusText)

	return &t, nil
}
