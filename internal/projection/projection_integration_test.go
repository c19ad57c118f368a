package projection_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"StakeLedger/internal/persistence"
	"StakeLedger/internal/projection"
	"StakeLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func setupDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	ctx := context.Background()

	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"event_log.events", "claim_log.settlements", "claim_log.account_summary"} {
		if _, err := db.Exec("TRUNCATE " + table + " CASCADE"); err != nil {
			cleanup()
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	db.Exec("UPDATE claim_log.watermark SET last_sequence = 0 WHERE id = 1")

	return db, cleanup
}

func runWorker(t *testing.T, db *sql.DB, outputs []projection.ProjectionOutput) {
	t.Helper()

	inputChan := make(chan projection.ProjectionOutput, len(outputs))
	worker := projection.NewProjectionWorker(db, inputChan, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	for _, out := range outputs {
		inputChan <- out
	}
	close(inputChan)

	if err := <-done; err != nil {
		t.Fatalf("worker: %v", err)
	}
}

func querySummary(t *testing.T, db *sql.DB, account string) (joined, minted, burned, claims int64) {
	t.Helper()
	err := db.QueryRow(`
		SELECT joined_amount, total_minted, total_burned, claim_count
		FROM claim_log.account_summary WHERE account = $1
	`, account).Scan(&joined, &minted, &burned, &claims)
	if err != nil {
		t.Fatalf("query summary: %v", err)
	}
	return
}

func queryWatermark(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var seq int64
	if err := db.QueryRow("SELECT last_sequence FROM claim_log.watermark WHERE id = 1").Scan(&seq); err != nil {
		t.Fatalf("query watermark: %v", err)
	}
	return seq
}

// ============================================================================
// Test: incremental projection updates
// ============================================================================

func TestProjectionWorker_AccumulatesAccountSummary(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	account := uuid.New().String()
	now := time.Now().UTC()

	runWorker(t, db, []projection.ProjectionOutput{
		{Sequence: 1, EventType: "Joined", Account: &account, JoinedDelta: 1000, Timestamp: now},
		{Sequence: 2, EventType: "RewardClaimed", Account: &account, MintDelta: 200, BurnDelta: 133, ClaimCount: 1, Timestamp: now},
		{Sequence: 3, EventType: "Exited", Account: &account, JoinedDelta: -400, Timestamp: now},
	})

	joined, minted, burned, claims := querySummary(t, db, account)
	if joined != 600 {
		t.Errorf("joined: got %d, want 600", joined)
	}
	if minted != 200 || burned != 133 || claims != 1 {
		t.Errorf("rewards: minted=%d burned=%d claims=%d", minted, burned, claims)
	}
	if wm := queryWatermark(t, db); wm != 3 {
		t.Errorf("watermark: got %d, want 3", wm)
	}
}

func TestProjectionWorker_SweepSkipsSummary(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	// Round-level sweeps have no account; only the watermark advances
	runWorker(t, db, []projection.ProjectionOutput{
		{Sequence: 1, EventType: "RoundSwept", Account: nil, BurnDelta: 1000, Timestamp: time.Now().UTC()},
	})

	var count int
	db.QueryRow("SELECT COUNT(*) FROM claim_log.account_summary").Scan(&count)
	if count != 0 {
		t.Errorf("summary rows: got %d, want 0", count)
	}
	if wm := queryWatermark(t, db); wm != 1 {
		t.Errorf("watermark: got %d, want 1", wm)
	}
}

func TestProjectionWorker_WatermarkNeverRegresses(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	account := uuid.New().String()
	now := time.Now().UTC()

	// A replayed lower sequence must not pull the watermark back
	runWorker(t, db, []projection.ProjectionOutput{
		{Sequence: 5, EventType: "Joined", Account: &account, JoinedDelta: 100, Timestamp: now},
		{Sequence: 2, EventType: "Joined", Account: &account, JoinedDelta: 100, Timestamp: now},
	})

	if wm := queryWatermark(t, db); wm != 5 {
		t.Errorf("watermark: got %d, want 5", wm)
	}
}

// ============================================================================
// Test: full rebuild from the event log
// ============================================================================

func TestRebuildProjections(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	account := uuid.New()
	other := uuid.New()
	zero := make([]byte, 32)

	insertEvent := func(seq int64, eventType string, acct uuid.UUID, payload string) {
		_, err := db.Exec(`
			INSERT INTO event_log.events
				(sequence, event_type, idempotency_key, account, payload, state_hash, prev_hash, timestamp, source_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $1)
		`, seq, eventType, uuid.New().String(), acct.String(), payload, zero, zero)
		if err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}
	insertSettlement := func(seq, round int64, acct *uuid.UUID, kind string, mint, burn int64) {
		var a interface{}
		if acct != nil {
			a = acct.String()
		}
		_, err := db.Exec(`
			INSERT INTO claim_log.settlements
				(settlement_id, round, account, kind, mint_amount, burn_amount, gov_ratio, sequence, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW())
		`, uuid.New().String(), round, a, kind, mint, burn, seq)
		if err != nil {
			t.Fatalf("seed settlement: %v", err)
		}
	}

	insertEvent(1, "Joined", account, `{"amount": 1000}`)
	insertEvent(2, "Joined", other, `{"amount": 500}`)
	insertEvent(3, "Exited", account, `{"amount": 400}`)
	insertSettlement(4, 1, &account, "claim", 200, 133)
	insertSettlement(5, 2, &account, "claim", 300, 0)
	insertSettlement(6, 2, nil, "sweep", 0, 900)

	// Stale summary row from before the rebuild
	db.Exec(`INSERT INTO claim_log.account_summary (account, joined_amount) VALUES ($1, 99999)`, account.String())

	if err := projection.RebuildProjections(ctx, db); err != nil {
		t.Fatalf("RebuildProjections: %v", err)
	}

	joined, minted, burned, claims := querySummary(t, db, account.String())
	if joined != 600 {
		t.Errorf("joined: got %d, want 600", joined)
	}
	if minted != 500 || burned != 133 || claims != 2 {
		t.Errorf("rewards: minted=%d burned=%d claims=%d", minted, burned, claims)
	}

	joined, minted, burned, claims = querySummary(t, db, other.String())
	if joined != 500 || minted != 0 || burned != 0 || claims != 0 {
		t.Errorf("other account: joined=%d minted=%d burned=%d claims=%d", joined, minted, burned, claims)
	}

	if wm := queryWatermark(t, db); wm != 3 {
		t.Errorf("watermark after rebuild: got %d, want 3", wm)
	}
}
