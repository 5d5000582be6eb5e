package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Human-readable number prefixes
const (
	scopeBatch       = "BTH"
	scopeTransaction = "TXN"
)

// nextSequence atomically increments and returns the per-day counter for a
// scope. Using a counter row instead of counting today's records keeps the
// generated numbers unique under concurrent writers.
func nextSequence(ctx context.Context, tx *sqlx.Tx, scope string, day time.Time) (int, error) {
	var value int
	query := `
		INSERT INTO id_counters (scope, day, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (scope, day) DO UPDATE SET value = id_counters.value + 1
		RETURNING value
	`
	if err := tx.QueryRowxContext(ctx, query, scope, day.Format("2006-01-02")).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to advance %s counter: %w", scope, err)
	}
	return value, nil
}

// nextBatchNumber returns the next BTH-YYYYMMDD-NNN identifier
func nextBatchNumber(ctx context.Context, tx *sqlx.Tx, day time.Time) (string, error) {
	n, err := nextSequence(ctx, tx, scopeBatch, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%03d", scopeBatch, day.Format("20060102"), n), nil
}

// nextTransactionNumber returns the next TXN-YYYYMMDD-NNNN identifier
func nextTransactionNumber(ctx context.Context, tx *sqlx.Tx, day time.Time) (string, error) {
	n, err := nextSequence(ctx, tx, scopeTransaction, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", scopeTransaction, day.Format("20060102"), n), nil
}
