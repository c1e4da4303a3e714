package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// OrderExists reports whether an order code was already processed in a
// previous run. Recorded orders are skipped to keep the pipeline idempotent.
func (d *DB) OrderExists(ctx context.Context, code string) (bool, error) {
	if d == nil || d.DB == nil {
		return false, ErrDisabled
	}
	var one int
	err := d.QueryRowContext(ctx, d.Rebind(`SELECT 1 FROM processed_orders WHERE code = ?`), code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("order exists %s: %w", code, err)
	}
	return true, nil
}

// RecordOrder marks an order as processed. Recording twice is a no-op.
func (d *DB) RecordOrder(ctx context.Context, orderID, code string) error {
	if d == nil || d.DB == nil {
		return ErrDisabled
	}
	_, err := d.ExecContext(ctx, d.Rebind(
		`INSERT INTO processed_orders (code, order_id) VALUES (?, ?) ON CONFLICT (code) DO NOTHING`),
		code, orderID,
	)
	if err != nil {
		return fmt.Errorf("record order %s: %w", code, err)
	}
	return nil
}
