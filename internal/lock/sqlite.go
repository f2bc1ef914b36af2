package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	sqliteutil "github.com/crewmesh/crewmesh/internal/common/sqlite"
	v1 "github.com/crewmesh/crewmesh/pkg/api/v1"
)

// SQLiteStore provides SQLite-backed claim storage.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the claim store and initializes its schema.
func NewSQLiteStore(db *sqlx.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize lock schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS resource_claims (
		slot TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		claimed_by TEXT NOT NULL,
		operation TEXT DEFAULT '',
		exclusive INTEGER NOT NULL DEFAULT 1,
		claimed_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (slot, claimed_by)
	);
	CREATE INDEX IF NOT EXISTS idx_resource_claims_expires_at ON resource_claims(expires_at);
	`)
	return err
}

// Acquire checks for conflicts and inserts the claim inside a single
// transaction. The writer pool is limited to one connection, so the
// check-and-insert pair cannot interleave with another claimer.
func (s *SQLiteStore) Acquire(ctx context.Context, claim *Claim) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := claim.ClaimedAt

	// Expired rows on this slot are dead weight; clear them before checking.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM resource_claims WHERE slot = ? AND expires_at <= ?`,
		claim.Slot, now); err != nil {
		return false, err
	}

	var conflicts int
	if claim.Exclusive {
		err = tx.GetContext(ctx, &conflicts,
			`SELECT COUNT(*) FROM resource_claims WHERE slot = ? AND expires_at > ?`,
			claim.Slot, now)
	} else {
		err = tx.GetContext(ctx, &conflicts,
			`SELECT COUNT(*) FROM resource_claims WHERE slot = ? AND expires_at > ? AND exclusive = 1`,
			claim.Slot, now)
	}
	if err != nil {
		return false, err
	}
	if conflicts > 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resource_claims
			(slot, resource_id, resource_type, claimed_by, operation, exclusive, claimed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot, claimed_by) DO UPDATE SET
			operation = excluded.operation,
			exclusive = excluded.exclusive,
			claimed_at = excluded.claimed_at,
			expires_at = excluded.expires_at`,
		claim.Slot, claim.ResourceID, string(claim.ResourceType), claim.ClaimedBy,
		claim.Operation, sqliteutil.BoolToInt(claim.Exclusive), claim.ClaimedAt, claim.ExpiresAt)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Release deletes the claim held by agentID on slot.
func (s *SQLiteStore) Release(ctx context.Context, slot, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resource_claims WHERE slot = ? AND claimed_by = ?`,
		slot, agentID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type claimRow struct {
	Slot         string    `db:"slot"`
	ResourceID   string    `db:"resource_id"`
	ResourceType string    `db:"resource_type"`
	ClaimedBy    string    `db:"claimed_by"`
	Operation    string    `db:"operation"`
	Exclusive    int       `db:"exclusive"`
	ClaimedAt    time.Time `db:"claimed_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

func (r *claimRow) toClaim() *Claim {
	return &Claim{
		Slot:         r.Slot,
		ResourceID:   r.ResourceID,
		ResourceType: v1.ResourceType(r.ResourceType),
		ClaimedBy:    r.ClaimedBy,
		Operation:    r.Operation,
		Exclusive:    r.Exclusive != 0,
		ClaimedAt:    r.ClaimedAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

// ActiveClaims returns the unexpired claims for a slot.
func (s *SQLiteStore) ActiveClaims(ctx context.Context, slot string, now time.Time) ([]*Claim, error) {
	var rows []claimRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM resource_claims WHERE slot = ? AND expires_at > ?`, slot, now)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	claims := make([]*Claim, 0, len(rows))
	for i := range rows {
		claims = append(claims, rows[i].toClaim())
	}
	return claims, nil
}

// List returns all unexpired claims ordered by expiry.
func (s *SQLiteStore) List(ctx context.Context, now time.Time) ([]*Claim, error) {
	var rows []claimRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM resource_claims WHERE expires_at > ? ORDER BY expires_at`, now)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	claims := make([]*Claim, 0, len(rows))
	for i := range rows {
		claims = append(claims, rows[i].toClaim())
	}
	return claims, nil
}

// DeleteExpired removes every claim past its expiry.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resource_claims WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
