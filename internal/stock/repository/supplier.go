package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// SupplierRepository maintains the local supplier cache, populated from
// supplier module events. Receive operations gate on this cache rather than
// calling the supplier service synchronously.
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// GetByID gets a cached supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	query := `SELECT * FROM supplier_cache WHERE id = $1`
	if err := r.db.GetContext(ctx, &supplier, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supplier")
		}
		return nil, err
	}
	return &supplier, nil
}

// ListByIDs gets cached suppliers by ID set
func (r *SupplierRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Supplier, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var suppliers []*domain.Supplier
	query := `SELECT * FROM supplier_cache WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &suppliers, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// Upsert inserts or refreshes a cached supplier
func (r *SupplierRepository) Upsert(ctx context.Context, supplier *domain.Supplier) error {
	query := `
		INSERT INTO supplier_cache (id, name, status, orders_count, last_order_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			orders_count = EXCLUDED.orders_count,
			last_order_date = EXCLUDED.last_order_date,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		supplier.ID, supplier.Name, supplier.Status,
		supplier.OrdersCount, supplier.LastOrderDate,
	)
	return err
}

// Delete removes a supplier from the cache
func (r *SupplierRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM supplier_cache WHERE id = $1`, id)
	return err
}

// RecordOrder bumps the supplier's order counters after a receive
func (r *SupplierRepository) RecordOrder(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE supplier_cache
		SET orders_count = orders_count + 1, last_order_date = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("supplier")
	}
	return nil
}
