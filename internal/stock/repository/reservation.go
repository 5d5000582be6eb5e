package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
)

// ReservationRepository persists time-limited stock holds. Hold writes are
// always paired with the reserved-quantity bookkeeping on their batches and
// the RESERVED/UNRESERVED audit entries, in one transaction.
type ReservationRepository struct {
	db *database.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Create inserts hold rows and applies the paired batch mutations atomically
func (r *ReservationRepository) Create(ctx context.Context, holds []*domain.Reservation, muts []domain.BatchMutation) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, hold := range holds {
			if err := insertReservationTx(ctx, tx, hold); err != nil {
				return err
			}
		}
		for _, m := range muts {
			if err := updateBatchTx(ctx, tx, m.Batch); err != nil {
				return err
			}
			if err := insertTransactionTx(ctx, tx, m.Txn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes hold rows and applies the paired batch mutations atomically
func (r *ReservationRepository) Delete(ctx context.Context, holdIDs []string, muts []domain.BatchMutation) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM stock_reservations WHERE id = ANY($1)`,
			pq.Array(holdIDs),
		); err != nil {
			return err
		}
		for _, m := range muts {
			if err := updateBatchTx(ctx, tx, m.Batch); err != nil {
				return err
			}
			if err := insertTransactionTx(ctx, tx, m.Txn); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByOrder lists all holds taken for an order reference
func (r *ReservationRepository) ListByOrder(ctx context.Context, orderReference string) ([]*domain.Reservation, error) {
	var holds []*domain.Reservation
	query := `
		SELECT * FROM stock_reservations
		WHERE order_reference = $1
		ORDER BY reserved_at ASC
	`
	if err := r.db.SelectContext(ctx, &holds, query, orderReference); err != nil {
		return nil, err
	}
	return holds, nil
}

// ListExpired lists holds whose TTL has lapsed. The sweep releases these.
func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	var holds []*domain.Reservation
	query := `
		SELECT * FROM stock_reservations
		WHERE expires_at <= $1
		ORDER BY expires_at ASC
	`
	if err := r.db.SelectContext(ctx, &holds, query, now); err != nil {
		return nil, err
	}
	return holds, nil
}

// ListByBatch lists holds against one batch
func (r *ReservationRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.Reservation, error) {
	var holds []*domain.Reservation
	query := `
		SELECT * FROM stock_reservations
		WHERE batch_id = $1
		ORDER BY reserved_at ASC
	`
	if err := r.db.SelectContext(ctx, &holds, query, batchID); err != nil {
		return nil, err
	}
	return holds, nil
}

func insertReservationTx(ctx context.Context, tx *sqlx.Tx, hold *domain.Reservation) error {
	if hold.ID == "" {
		hold.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_reservations (
			id, batch_id, drug_id, order_reference, quantity, reserved_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		hold.ID, hold.BatchID, hold.DrugID, hold.OrderReference,
		hold.Quantity, hold.ReservedAt, hold.ExpiresAt,
	).Scan(&hold.CreatedAt)
}
