package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StakeLedger/internal/event"
)

// EventLogLoader streams the persisted event log back into the core on
// startup. Recovery is full replay: there are no snapshots, the log is the
// sole source of truth and staking command volume keeps it short.
type EventLogLoader struct {
	db *sql.DB
}

func NewEventLogLoader(db *sql.DB) *EventLogLoader {
	return &EventLogLoader{db: db}
}

// LoadEvents reads all events with sequence > afterSequence in sequence
// order, invoking apply for each. Stops on the first apply error.
func (l *EventLogLoader) LoadEvents(ctx context.Context, afterSequence int64, apply func(event.Envelope) error) (int64, error) {
	query := `
		SELECT sequence, event_type, idempotency_key, account, round,
		       payload, state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence > $1
		ORDER BY sequence ASC
	`

	rows, err := l.db.QueryContext(ctx, query, afterSequence)
	if err != nil {
		return 0, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		var (
			env       event.Envelope
			eventType string
			account   sql.NullString
			round     sql.NullInt64
			stateHash []byte
			prevHash  []byte
			timestamp time.Time
		)
		if err := rows.Scan(
			&env.Sequence, &eventType, &env.IdempotencyKey, &account, &round,
			&env.Payload, &stateHash, &prevHash, &timestamp, &env.SourceSequence,
		); err != nil {
			return count, fmt.Errorf("scan event row: %w", err)
		}

		env.EventType = event.ParseEventType(eventType)
		env.Timestamp = timestamp
		if round.Valid {
			r := round.Int64
			env.Round = &r
		}
		copy(env.StateHash[:], stateHash)
		copy(env.PrevHash[:], prevHash)

		if err := apply(env); err != nil {
			return count, fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
		}
		count++
	}
	return count, rows.Err()
}

// LastSequenceAndHash returns the tip of the persisted log: the highest
// sequence and its state hash. Returns (0, zero hash, nil) on an empty log.
func (l *EventLogLoader) LastSequenceAndHash(ctx context.Context) (int64, [32]byte, error) {
	var (
		sequence  int64
		stateHash []byte
		tip       [32]byte
	)

	query := `
		SELECT sequence, state_hash
		FROM event_log.events
		ORDER BY sequence DESC
		LIMIT 1
	`
	err := l.db.QueryRowContext(ctx, query).Scan(&sequence, &stateHash)
	if err == sql.ErrNoRows {
		return 0, tip, nil
	}
	if err != nil {
		return 0, tip, fmt.Errorf("query log tip: %w", err)
	}

	copy(tip[:], stateHash)
	return sequence, tip, nil
}

// LoadRecentKeys returns the most recent composite idempotency keys
// (event_type:idempotency_key) for warming the dedup LRU after restart.
func (l *EventLogLoader) LoadRecentKeys(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT event_type, idempotency_key
		FROM event_log.events
		ORDER BY sequence DESC
		LIMIT $1
	`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var eventType, key string
		if err := rows.Scan(&eventType, &key); err != nil {
			return nil, err
		}
		keys = append(keys, fmt.Sprintf("%s:%s", eventType, key))
	}
	return keys, rows.Err()
}
