package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk-relay/internal/domain"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DeliveryRepository stores relay audit rows.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	ListByTicket(ctx context.Context, ticketNumber string, limit int) ([]domain.Delivery, error)
}

type deliveryRepository struct {
	db DBTX
}

// NewDeliveryRepository builds repository.
func NewDeliveryRepository(db DBTX) DeliveryRepository {
	return &deliveryRepository{db: db}
}

func (r *deliveryRepository) Create(ctx context.Context, d *domain.Delivery) error {
	const query = `
        INSERT INTO relay_deliveries (id, route, ticket_number, request_id, outcome, error_code, error_message, duration_ms, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		d.ID,
		string(d.Route),
		d.TicketNumber,
		d.RequestID,
		string(d.Outcome),
		d.ErrorCode,
		d.ErrorMessage,
		d.Duration.Milliseconds(),
		d.CreatedAt,
	)
	return err
}

func (r *deliveryRepository) ListByTicket(ctx context.Context, ticketNumber string, limit int) ([]domain.Delivery, error) {
	const query = `
        SELECT id, route, ticket_number, request_id, outcome, error_code, error_message, duration_ms, created_at
        FROM relay_deliveries WHERE ticket_number=$1 ORDER BY created_at DESC LIMIT $2`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, query, ticketNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Delivery
	for rows.Next() {
		var (
			d          domain.Delivery
			route      string
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(
			&d.ID,
			&route,
			&d.TicketNumber,
			&d.RequestID,
			&outcome,
			&d.ErrorCode,
			&d.ErrorMessage,
			&durationMS,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		d.Route = domain.Route(route)
		d.Outcome = domain.DeliveryOutcome(outcome)
		d.Duration = time.Duration(durationMS) * time.Millisecond
		result = append(result, d)
	}
	return result, rows.Err()
}
