package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-gate/internal/domain"
)

type ValidationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ValidationRepo) With(db DB) *ValidationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ValidationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert appends the audit record. The unique index on ticket_id turns a
// second record for the same ticket into repository.ErrConflict.
func (r *ValidationRepo) Insert(ctx context.Context, rec domain.ValidationRecord) error {
	const op = "postgresrepo.ValidationRepo.Insert"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO validation_records(id, ticket_id, operator_id, validated_at, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.TicketID, rec.OperatorID, rec.ValidatedAt, rec.IP, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *ValidationRepo) ByTicket(ctx context.Context, ticketID uuid.UUID) (*domain.ValidationRecord, error) {
	const op = "postgresrepo.ValidationRepo.ByTicket"

	var rec domain.ValidationRecord
	err := r.handle().QueryRow(ctx,
		`SELECT id, ticket_id, operator_id, validated_at, ip, user_agent
		 FROM validation_records
		 WHERE ticket_id = $1
		 ORDER BY validated_at DESC
		 LIMIT 1`,
		ticketID,
	).Scan(&rec.ID, &rec.TicketID, &rec.OperatorID, &rec.ValidatedAt, &rec.IP, &rec.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &rec, nil
}
