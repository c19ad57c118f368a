package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the settlement and summary
// tables. All responses include as_of_sequence (the projection watermark)
// so callers can reason about freshness against the core sequence.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetClaimHistory returns an account's settled claims, newest round first.
// Supports cursor-based pagination via beforeRound.
func (qs *QueryService) GetClaimHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	beforeRound *int64,
) ([]SettlementEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT settlement_id, round, kind, mint_amount, burn_amount, gov_ratio,
		       sequence, EXTRACT(EPOCH FROM timestamp)::BIGINT
		FROM claim_log.settlements
		WHERE account = $1 AND kind = 'claim'
	`
	args := []interface{}{account}
	argIdx := 2

	if beforeRound != nil {
		query += fmt.Sprintf(" AND round < $%d", argIdx)
		args = append(args, *beforeRound)
		argIdx++
	}

	query += " ORDER BY round DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SettlementEntry
	for rows.Next() {
		e := SettlementEntry{AsOfSequence: asOfSeq}
		acct := account
		e.Account = &acct
		if err := rows.Scan(
			&e.SettlementID, &e.Round, &e.Kind, &e.MintAmount, &e.BurnAmount,
			&e.GovRatio, &e.Sequence, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetRoundSettlements returns every settlement (claims and the sweep, if
// any) recorded for a round.
func (qs *QueryService) GetRoundSettlements(
	ctx context.Context,
	round int64,
) ([]SettlementEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT settlement_id, account, kind, mint_amount, burn_amount, gov_ratio,
		       sequence, EXTRACT(EPOCH FROM timestamp)::BIGINT
		FROM claim_log.settlements
		WHERE round = $1
		ORDER BY sequence ASC
	`, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SettlementEntry
	for rows.Next() {
		e := SettlementEntry{Round: round, AsOfSequence: asOfSeq}
		var acct uuid.NullUUID
		if err := rows.Scan(
			&e.SettlementID, &acct, &e.Kind, &e.MintAmount, &e.BurnAmount,
			&e.GovRatio, &e.Sequence, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		if acct.Valid {
			a := acct.UUID
			e.Account = &a
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetAccountSummary returns the account's running totals. A never-seen
// account yields a zero summary, not an error.
func (qs *QueryService) GetAccountSummary(
	ctx context.Context,
	account uuid.UUID,
) (*AccountSummaryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	summary := &AccountSummaryResponse{
		Account:      account,
		AsOfSequence: asOfSeq,
	}
	err = qs.db.QueryRowContext(ctx, `
		SELECT joined_amount, total_minted, total_burned, claim_count
		FROM claim_log.account_summary
		WHERE account = $1
	`, account).Scan(
		&summary.JoinedAmount, &summary.TotalMinted,
		&summary.TotalBurned, &summary.ClaimCount,
	)
	if err == sql.ErrNoRows {
		return summary, nil
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetEventHistory returns an account's event-log entries with pagination.
func (qs *QueryService) GetEventHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]EventHistoryEntry, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT sequence, event_type, round, payload,
		       EXTRACT(EPOCH FROM timestamp)::BIGINT
		FROM event_log.events
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventHistoryEntry
	for rows.Next() {
		e := EventHistoryEntry{AsOfSequence: asOfSeq}
		acct := account
		e.Account = &acct
		var round sql.NullInt64
		if err := rows.Scan(&e.Sequence, &e.EventType, &round, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		if round.Valid {
			r := round.Int64
			e.Round = &r
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the persisted log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e2.sequence IS NOT NULL AND e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

// Watermark returns the projection watermark sequence.
func (qs *QueryService) Watermark(ctx context.Context) (int64, error) {
	return qs.getWatermark(ctx)
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM claim_log.watermark WHERE id = 1
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
