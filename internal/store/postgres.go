package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/swiftremit/swiftremit/internal/ledgertime"
)

// PostgresStore maps the typed keyspace onto a single engine_kv table.
// Temporary-tier rows carry an expires_at ledger timestamp and are filtered
// on read; a periodic sweep deletes lapsed rows.
type PostgresStore struct {
	db    *sql.DB
	clock ledgertime.Clock
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB, clock ledgertime.Clock) *PostgresStore {
	return &PostgresStore{db: db, clock: clock}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func pgGet(ctx context.Context, q querier, now uint64, key Key, dest interface{}) (bool, error) {
	var raw []byte
	err := q.QueryRowContext(ctx, `
		SELECT value FROM engine_kv
		WHERE tier = $1 AND key = $2
		  AND (expires_at IS NULL OR expires_at > $3)
	`, key.Tier().String(), key.String(), int64(now)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("engine_kv get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, corrupt(key, err)
	}
	return true, nil
}

func pgSet(ctx context.Context, q querier, key Key, value interface{}, expiresAt *uint64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return corrupt(key, err)
	}
	var exp sql.NullInt64
	if expiresAt != nil {
		exp = sql.NullInt64{Int64: int64(*expiresAt), Valid: true}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO engine_kv (tier, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tier, key) DO UPDATE SET value = $3, expires_at = $4
	`, key.Tier().String(), key.String(), raw, exp)
	if err != nil {
		return fmt.Errorf("engine_kv set %s: %w", key, err)
	}
	return nil
}

func pgHas(ctx context.Context, q querier, now uint64, key Key) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM engine_kv
		WHERE tier = $1 AND key = $2
		  AND (expires_at IS NULL OR expires_at > $3)
	`, key.Tier().String(), key.String(), int64(now)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("engine_kv has %s: %w", key, err)
	}
	return true, nil
}

func pgRemove(ctx context.Context, q querier, key Key) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM engine_kv WHERE tier = $1 AND key = $2
	`, key.Tier().String(), key.String())
	if err != nil {
		return fmt.Errorf("engine_kv remove %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key Key, dest interface{}) (bool, error) {
	return pgGet(ctx, p.db, p.clock.Timestamp(), key, dest)
}

func (p *PostgresStore) Set(ctx context.Context, key Key, value interface{}) error {
	return pgSet(ctx, p.db, key, value, nil)
}

func (p *PostgresStore) SetTTL(ctx context.Context, key Key, value interface{}, expiresAt uint64) error {
	return pgSet(ctx, p.db, key, value, &expiresAt)
}

func (p *PostgresStore) Has(ctx context.Context, key Key) (bool, error) {
	return pgHas(ctx, p.db, p.clock.Timestamp(), key)
}

func (p *PostgresStore) Remove(ctx context.Context, key Key) error {
	return pgRemove(ctx, p.db, key)
}

// Sweep deletes lapsed temporary rows and returns how many were removed.
func (p *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM engine_kv
		WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, int64(p.clock.Timestamp()))
	if err != nil {
		return 0, fmt.Errorf("engine_kv sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type pgTx struct {
	tx    *sql.Tx
	clock ledgertime.Clock
}

func (t *pgTx) Get(ctx context.Context, key Key, dest interface{}) (bool, error) {
	return pgGet(ctx, t.tx, t.clock.Timestamp(), key, dest)
}

func (t *pgTx) Set(ctx context.Context, key Key, value interface{}) error {
	return pgSet(ctx, t.tx, key, value, nil)
}

func (t *pgTx) SetTTL(ctx context.Context, key Key, value interface{}, expiresAt uint64) error {
	return pgSet(ctx, t.tx, key, value, &expiresAt)
}

func (t *pgTx) Has(ctx context.Context, key Key) (bool, error) {
	return pgHas(ctx, t.tx, t.clock.Timestamp(), key)
}

func (t *pgTx) Remove(ctx context.Context, key Key) error {
	return pgRemove(ctx, t.tx, key)
}

// RunInTransaction wraps fn in a serializable SQL transaction. Entry points
// are serialized by the host, so serialization failures indicate misuse
// rather than expected contention and are returned as-is.
func (p *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx, clock: p.clock}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var (
	_ Transactional = (*PostgresStore)(nil)
	_ Tx            = (*pgTx)(nil)
)
