package storage

import (
	"context"
	"fmt"

	logx "ordersched/pkg/logx"
)

// RosterEntry is one designer as declared in configuration.
//
// Secondary controls membership in the secondary rotation track; a designer
// outside that track keeps a NULL check_turn column rather than FALSE.
type RosterEntry struct {
	ID        string
	Name      string
	CanCheck  bool
	Secondary bool
}

// SyncRoster upserts the configured designers. Rotation flags are never
// touched for existing rows; only name, capability and secondary-track
// membership follow the config. Designers removed from config are kept
// (roster membership is stable, per the rotation invariants).
func (d *DB) SyncRoster(ctx context.Context, roster []RosterEntry) error {
	if d == nil || d.DB == nil {
		return ErrDisabled
	}
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync roster: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := d.Rebind(`
		INSERT INTO designers (id, name, can_check, check_turn)
		VALUES (?, ?, ?, CASE WHEN ? THEN FALSE ELSE NULL END)
		ON CONFLICT (id) DO UPDATE SET
			name       = excluded.name,
			can_check  = excluded.can_check,
			check_turn = CASE
				WHEN ? AND designers.check_turn IS NULL THEN FALSE
				WHEN NOT ? THEN NULL
				ELSE designers.check_turn
			END`)

	for _, e := range roster {
		if _, err := tx.ExecContext(ctx, insert, e.ID, e.Name, e.CanCheck, e.Secondary, e.Secondary, e.Secondary); err != nil {
			return fmt.Errorf("sync roster %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync roster commit: %w", err)
	}
	d.log.Debug("roster synced", logx.Int("designers", len(roster)))
	return nil
}
