// Package rotation keeps the round-robin designer rotation in the relational
// store. Two independent tracks exist: the primary track every designer
// participates in, and a secondary track designers opt into (opt-out is a
// NULL flag, not FALSE). Per track, at most one designer holds the turn at
// any time; every mutation is one transaction so overlapping runs can never
// observe zero or two holders.
package rotation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ordersched/internal/storage"
	logx "ordersched/pkg/logx"
)

// ErrRotationExhausted means no designer holds the turn flag for a track.
// That is a configuration error: the track was never bootstrapped or the
// roster table was edited by hand.
var ErrRotationExhausted = errors.New("rotation: no designer holds the current turn")

// Track selects one of the two rotation sequences.
type Track int

const (
	Primary Track = iota
	Secondary
)

func (t Track) String() string {
	if t == Secondary {
		return "secondary"
	}
	return "primary"
}

// column is the turn-flag column backing the track.
func (t Track) column() string {
	if t == Secondary {
		return "check_turn"
	}
	return "turn"
}

// eligible restricts candidates to track members.
func (t Track) eligible() string {
	if t == Secondary {
		return "check_turn IS NOT NULL"
	}
	return "1=1"
}

// Designer is one roster member.
type Designer struct {
	ID       string
	Name     string
	CanCheck bool
}

type Ledger struct {
	db  *storage.DB
	log logx.Logger
}

func NewLedger(db *storage.DB, log logx.Logger) *Ledger {
	return &Ledger{db: db, log: log.With(logx.String("comp", "rotation"))}
}

// Current returns the designer whose turn it is on the given track.
func (l *Ledger) Current(ctx context.Context, track Track) (Designer, error) {
	q := l.db.Rebind(fmt.Sprintf(
		`SELECT id, name, can_check FROM designers WHERE %s ORDER BY id ASC LIMIT 1`, track.column()))
	var d Designer
	err := l.db.QueryRowContext(ctx, q).Scan(&d.ID, &d.Name, &d.CanCheck)
	if errors.Is(err, sql.ErrNoRows) {
		return Designer{}, fmt.Errorf("%s track: %w", track, ErrRotationExhausted)
	}
	if err != nil {
		return Designer{}, fmt.Errorf("rotation current (%s): %w", track, err)
	}
	return d, nil
}

// Advance passes the turn from fromID to the next eligible designer in
// ascending-id order, wrapping to the smallest id after the last one.
// Clear-and-set happens in a single transaction.
func (l *Ledger) Advance(ctx context.Context, track Track, fromID string) (Designer, error) {
	tx, err := l.db.BeginTx(ctx, l.db.TxOptions())
	if err != nil {
		return Designer{}, fmt.Errorf("rotation advance (%s): %w", track, err)
	}
	defer func() { _ = tx.Rollback() }()

	col := track.column()
	if _, err := tx.ExecContext(ctx,
		l.db.Rebind(fmt.Sprintf(`UPDATE designers SET %s = FALSE WHERE id = ?`, col)), fromID); err != nil {
		return Designer{}, fmt.Errorf("rotation advance (%s) clear: %w", track, err)
	}

	next, err := l.nextAfter(ctx, tx, track, fromID, false)
	if err != nil {
		return Designer{}, err
	}

	if _, err := tx.ExecContext(ctx,
		l.db.Rebind(fmt.Sprintf(`UPDATE designers SET %s = TRUE WHERE id = ?`, col)), next.ID); err != nil {
		return Designer{}, fmt.Errorf("rotation advance (%s) set: %w", track, err)
	}
	if err := tx.Commit(); err != nil {
		return Designer{}, fmt.Errorf("rotation advance (%s) commit: %w", track, err)
	}

	l.log.Debug("rotation advanced",
		logx.String("track", track.String()),
		logx.String("from", fromID),
		logx.String("to", next.ID),
		logx.String("name", next.Name))
	return next, nil
}

// PeekAfter returns the eligible designer that would follow afterID,
// without touching any flag. The wraparound excludes afterID itself, so on
// a one-designer track the lookup fails.
func (l *Ledger) PeekAfter(ctx context.Context, track Track, afterID string) (Designer, error) {
	return l.nextAfter(ctx, nil, track, afterID, true)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextAfter finds the next track member with id > afterID, wrapping to the
// smallest id. When excludeSelf is set the wrap skips afterID.
func (l *Ledger) nextAfter(ctx context.Context, tx *sql.Tx, track Track, afterID string, excludeSelf bool) (Designer, error) {
	var q queryRower = l.db
	lock := ""
	if tx != nil {
		q = tx
		lock = l.db.ForUpdate()
	}

	sel := fmt.Sprintf(
		`SELECT id, name, can_check FROM designers WHERE id > ? AND %s ORDER BY id ASC LIMIT 1%s`,
		track.eligible(), lock)
	var d Designer
	err := q.QueryRowContext(ctx, l.db.Rebind(sel), afterID).Scan(&d.ID, &d.Name, &d.CanCheck)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Designer{}, fmt.Errorf("rotation next (%s): %w", track, err)
	}

	// Wrap to the start of the cycle.
	wrapFilter := track.eligible()
	args := []any{}
	if excludeSelf {
		wrapFilter += " AND id <> ?"
		args = append(args, afterID)
	}
	wrap := fmt.Sprintf(
		`SELECT id, name, can_check FROM designers WHERE %s ORDER BY id ASC LIMIT 1%s`, wrapFilter, lock)
	err = q.QueryRowContext(ctx, l.db.Rebind(wrap), args...).Scan(&d.ID, &d.Name, &d.CanCheck)
	if errors.Is(err, sql.ErrNoRows) {
		return Designer{}, fmt.Errorf("%s track after %s: %w", track, afterID, ErrRotationExhausted)
	}
	if err != nil {
		return Designer{}, fmt.Errorf("rotation wrap (%s): %w", track, err)
	}
	return d, nil
}

// Bootstrap gives the turn to a designer when no track member holds it.
// It is idempotent: once any member is flagged it does nothing. An empty
// preferredID picks the eligible designer with the smallest id. A track
// with no members at all is left untouched.
func (l *Ledger) Bootstrap(ctx context.Context, track Track, preferredID string) error {
	tx, err := l.db.BeginTx(ctx, l.db.TxOptions())
	if err != nil {
		return fmt.Errorf("rotation bootstrap (%s): %w", track, err)
	}
	defer func() { _ = tx.Rollback() }()

	col := track.column()
	var n int
	count := fmt.Sprintf(`SELECT COUNT(*) FROM designers WHERE %s`, col)
	if err := tx.QueryRowContext(ctx, count).Scan(&n); err != nil {
		return fmt.Errorf("rotation bootstrap (%s) count: %w", track, err)
	}
	if n > 0 {
		return nil
	}

	id := preferredID
	if id == "" {
		sel := fmt.Sprintf(`SELECT id FROM designers WHERE %s ORDER BY id ASC LIMIT 1`, track.eligible())
		err := tx.QueryRowContext(ctx, sel).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			l.log.Warn("rotation track has no members; bootstrap skipped", logx.String("track", track.String()))
			return nil
		}
		if err != nil {
			return fmt.Errorf("rotation bootstrap (%s) pick: %w", track, err)
		}
	}

	set := fmt.Sprintf(`UPDATE designers SET %s = TRUE WHERE id = ? AND %s`, col, track.eligible())
	res, err := tx.ExecContext(ctx, l.db.Rebind(set), id)
	if err != nil {
		return fmt.Errorf("rotation bootstrap (%s) set: %w", track, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("rotation bootstrap (%s): designer %s is not a track member", track, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rotation bootstrap (%s) commit: %w", track, err)
	}
	l.log.Info("rotation bootstrapped", logx.String("track", track.String()), logx.String("designer", id))
	return nil
}
