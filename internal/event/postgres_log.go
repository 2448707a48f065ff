package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresLog is a durable append-only sink backed by the engine_events
// table. Rows are insert-only; there is no update or delete path.
type PostgresLog struct {
	db *sql.DB
}

// NewPostgresLog creates a PostgreSQL-backed event log.
func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(ctx context.Context, e *Envelope) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO engine_events (topic_a, topic_b, schema_version, ledger_sequence, ts, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Topics[0], e.Topics[1], e.SchemaVersion, e.LedgerSequence, int64(e.Timestamp), data)
	if err != nil {
		return fmt.Errorf("appending event %s.%s: %w", e.Topics[0], e.Topics[1], err)
	}
	return nil
}

// ByTopic returns up to limit records for a topic pair in append order.
func (l *PostgresLog) ByTopic(ctx context.Context, topics Topic, limit int) ([]*Envelope, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT topic_a, topic_b, schema_version, ledger_sequence, ts, payload
		FROM engine_events
		WHERE topic_a = $1 AND topic_b = $2
		ORDER BY id ASC
		LIMIT $3
	`, topics[0], topics[1], limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Envelope
	for rows.Next() {
		var (
			e   Envelope
			ts  int64
			raw []byte
		)
		if err := rows.Scan(&e.Topics[0], &e.Topics[1], &e.SchemaVersion, &e.LedgerSequence, &ts, &raw); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Timestamp = uint64(ts)
		if err := json.Unmarshal(raw, &e.Data); err != nil {
			return nil, fmt.Errorf("decoding event payload: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CountByTopic returns the number of records for a topic pair.
func (l *PostgresLog) CountByTopic(ctx context.Context, topics Topic) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM engine_events WHERE topic_a = $1 AND topic_b = $2
	`, topics[0], topics[1]).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

var _ Sink = (*PostgresLog)(nil)
