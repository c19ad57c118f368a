package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StakeLedger/internal/observability"

	"github.com/rs/zerolog"
)

// ProjectionOutput is the flattened per-event delta the projection worker
// consumes. The orchestrator bridges core.CoreOutput into this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	Account   *string

	// Signed LP balance change (joins positive, exits negative)
	JoinedDelta int64

	// Settled reward deltas from claims
	MintDelta  int64
	BurnDelta  int64
	ClaimCount int64

	Timestamp time.Time
}

// ProjectionWorker updates the account summary tables from processed
// events. The projection channel is non-blocking with drop: if projections
// fall behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       logger,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				// Continue: projections are eventually consistent and can
				// be rebuilt from the event log
				pw.log.Warn().Err(err).
					Int64("sequence", output.Sequence).
					Msg("projection update failed")
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("account_summary").
					Observe(time.Since(start).Seconds())
				pw.metrics.ProjectionSequence.Set(float64(output.Sequence))
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Account != nil {
		if err := pw.updateAccountSummary(ctx, tx, output); err != nil {
			return fmt.Errorf("account summary: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE claim_log.watermark
		SET last_sequence = $1, updated_at = NOW()
		WHERE id = 1 AND last_sequence < $1
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateAccountSummary(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO claim_log.account_summary
			(account, joined_amount, total_minted, total_burned, claim_count, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (account) DO UPDATE SET
			joined_amount = claim_log.account_summary.joined_amount + $2,
			total_minted  = claim_log.account_summary.total_minted + $3,
			total_burned  = claim_log.account_summary.total_burned + $4,
			claim_count   = claim_log.account_summary.claim_count + $5,
			last_sequence = $6,
			updated_at    = NOW()
	`, output.Account, output.JoinedDelta, output.MintDelta, output.BurnDelta,
		output.ClaimCount, output.Sequence)
	return err
}

// RebuildProjections rebuilds the summary tables from the event log and
// settlement history. Used after a projection drop or a schema change.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE claim_log.account_summary`,
		`UPDATE claim_log.watermark SET last_sequence = 0, updated_at = NOW() WHERE id = 1`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Joined balances come from join/exit payloads in the event log
	_, err := db.ExecContext(ctx, `
		INSERT INTO claim_log.account_summary (account, joined_amount, last_sequence)
		SELECT
			account,
			SUM(CASE event_type
				WHEN 'Joined' THEN (payload->>'amount')::BIGINT
				WHEN 'Exited' THEN -(payload->>'amount')::BIGINT
				ELSE 0
			END) AS joined_amount,
			MAX(sequence) AS last_sequence
		FROM event_log.events
		WHERE account IS NOT NULL AND event_type IN ('Joined', 'Exited')
		GROUP BY account
		ON CONFLICT (account) DO UPDATE
			SET joined_amount = EXCLUDED.joined_amount,
			    last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild joined amounts: %w", err)
	}

	// Reward totals come from the settlement table
	_, err = db.ExecContext(ctx, `
		INSERT INTO claim_log.account_summary (account, total_minted, total_burned, claim_count, last_sequence)
		SELECT
			account,
			SUM(mint_amount) AS total_minted,
			SUM(burn_amount) AS total_burned,
			COUNT(*) AS claim_count,
			MAX(sequence) AS last_sequence
		FROM claim_log.settlements
		WHERE account IS NOT NULL AND kind = 'claim'
		GROUP BY account
		ON CONFLICT (account) DO UPDATE
			SET total_minted  = EXCLUDED.total_minted,
			    total_burned  = EXCLUDED.total_burned,
			    claim_count   = EXCLUDED.claim_count,
			    last_sequence = GREATEST(claim_log.account_summary.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild reward totals: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE claim_log.watermark
		SET last_sequence = COALESCE((SELECT MAX(sequence) FROM event_log.events), 0),
		    updated_at = NOW()
		WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	return nil
}
