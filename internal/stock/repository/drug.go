package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// DrugRepository reads product records and maintains the denormalized
// quantity cache. The catalog itself is owned by another service; this
// repository only touches the fields the stock engine derives.
type DrugRepository struct {
	db *database.DB
}

// NewDrugRepository creates a new drug repository
func NewDrugRepository(db *database.DB) *DrugRepository {
	return &DrugRepository{db: db}
}

// GetByID gets a drug by ID
func (r *DrugRepository) GetByID(ctx context.Context, id string) (*domain.Drug, error) {
	var drug domain.Drug
	query := `SELECT * FROM drugs WHERE id = $1`
	if err := r.db.GetContext(ctx, &drug, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("drug")
		}
		return nil, err
	}
	return &drug, nil
}

// ListByIDs gets drugs by ID set
func (r *DrugRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Drug, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var drugs []*domain.Drug
	query := `SELECT * FROM drugs WHERE id = ANY($1)`
	if err := r.db.SelectContext(ctx, &drugs, query, pq.Array(ids)); err != nil {
		return nil, err
	}
	return drugs, nil
}

// UpdateAggregate writes the recomputed on-hand quantity for a drug. The
// cache is best-effort: it is safe to retry or skip transiently because the
// batches remain authoritative.
func (r *DrugRepository) UpdateAggregate(ctx context.Context, drugID string, quantity int) error {
	query := `
		UPDATE drugs SET quantity = $2, is_available = ($2 > 0), updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, drugID, quantity)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("drug")
	}
	return nil
}

// ListDirectQuantity lists legacy products that carry stock directly on the
// product record, predating batch tracking. They feed valuation totals but
// have no supplier attribution.
func (r *DrugRepository) ListDirectQuantity(ctx context.Context) ([]*domain.Drug, error) {
	var drugs []*domain.Drug
	query := `SELECT * FROM drugs WHERE has_batches = FALSE AND quantity > 0`
	if err := r.db.SelectContext(ctx, &drugs, query); err != nil {
		return nil, err
	}
	return drugs, nil
}
