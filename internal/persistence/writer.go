package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter writes events and settlement rows to Postgres using
// multi-row INSERT batches. Portable alternative to the COPY protocol;
// switch to pgx CopyFrom if write throughput ever becomes the bottleneck.
type EventLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Account        *string
	Round          *int64
	Payload        []byte // JSON-encoded applied-event record
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// SettlementRow represents a row in claim_log.settlements
type SettlementRow struct {
	SettlementID string
	Round        int64
	Account      *string // NULL for round-level sweeps
	Kind         string  // "claim" or "sweep"
	MintAmount   int64
	BurnAmount   int64
	GovRatio     int64
	Sequence     int64
	Timestamp    time.Time
}

func NewEventLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *EventLogWriter {
	return &EventLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteEventBatch writes a batch of events to event_log.events inside the
// caller's transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, account, round, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*10)

	for i, e := range events {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Account, e.Round,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteSettlementBatch writes a batch of settlement rows to
// claim_log.settlements inside the caller's transaction.
func (w *EventLogWriter) WriteSettlementBatch(ctx context.Context, tx *sql.Tx, settlements []SettlementRow) error {
	if len(settlements) == 0 {
		return nil
	}

	query := `INSERT INTO claim_log.settlements
		(settlement_id, round, account, kind, mint_amount, burn_amount, gov_ratio, sequence, timestamp)
		VALUES `

	values := make([]string, 0, len(settlements))
	args := make([]interface{}, 0, len(settlements)*9)

	for i, s := range settlements {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			s.SettlementID, s.Round, s.Account, s.Kind,
			s.MintAmount, s.BurnAmount, s.GovRatio, s.Sequence, s.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (settlement_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
