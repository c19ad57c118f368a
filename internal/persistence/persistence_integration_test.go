package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"StakeLedger/internal/event"
	"StakeLedger/internal/persistence"
	"StakeLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// setupDB prepares a migrated, empty test database.
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

func testEventRow(seq int64, account string) persistence.EventRow {
	return persistence.EventRow{
		Sequence:       seq,
		EventType:      "Joined",
		IdempotencyKey: uuid.New().String(),
		Account:        &account,
		Payload:        []byte(`{"amount": 100}`),
		StateHash:      make([]byte, 32),
		PrevHash:       make([]byte, 32),
		Timestamp:      time.Now().UTC().Truncate(time.Microsecond),
		SourceSequence: seq,
	}
}

// ============================================================================
// Test: writer + loader round trip
// ============================================================================

func TestEventLog_WriteAndLoad(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db, 50, 10*time.Millisecond)
	account := uuid.New().String()

	events := []persistence.EventRow{testEventRow(1, account), testEventRow(2, account), testEventRow(3, account)}
	events[2].StateHash[0] = 0xAB
	round := int64(1)
	events[2].EventType = "RewardClaimed"
	events[2].Round = &round

	settlements := []persistence.SettlementRow{{
		SettlementID: uuid.New().String(),
		Round:        1,
		Account:      &account,
		Kind:         "claim",
		MintAmount:   200,
		BurnAmount:   133,
		GovRatio:     42,
		Sequence:     3,
		Timestamp:    time.Now().UTC(),
	}}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, tx, events); err != nil {
		t.Fatalf("write events: %v", err)
	}
	if err := writer.WriteSettlementBatch(ctx, tx, settlements); err != nil {
		t.Fatalf("write settlements: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	loader := persistence.NewEventLogLoader(db)
	var loaded []event.Envelope
	count, err := loader.LoadEvents(ctx, 0, func(env event.Envelope) error {
		loaded = append(loaded, env)
		return nil
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if count != 3 || len(loaded) != 3 {
		t.Fatalf("loaded: got %d, want 3", count)
	}
	if loaded[0].Sequence != 1 || loaded[2].Sequence != 3 {
		t.Error("events not loaded in sequence order")
	}
	if loaded[2].EventType != event.EventTypeRewardClaimed {
		t.Errorf("event type: got %v", loaded[2].EventType)
	}
	if loaded[2].Round == nil || *loaded[2].Round != 1 {
		t.Error("round not loaded")
	}
	if string(loaded[0].Payload) != `{"amount": 100}` {
		t.Errorf("payload: %s", loaded[0].Payload)
	}

	lastSeq, tip, err := loader.LastSequenceAndHash(ctx)
	if err != nil {
		t.Fatalf("log tip: %v", err)
	}
	if lastSeq != 3 || tip[0] != 0xAB {
		t.Errorf("tip: seq=%d hash[0]=%x", lastSeq, tip[0])
	}

	// afterSequence resumes mid-log
	count, err = loader.LoadEvents(ctx, 2, func(event.Envelope) error { return nil })
	if err != nil || count != 1 {
		t.Errorf("resume load: count=%d err=%v", count, err)
	}
}

func TestEventLog_EmptyTip(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	loader := persistence.NewEventLogLoader(db)
	lastSeq, tip, err := loader.LastSequenceAndHash(context.Background())
	if err != nil {
		t.Fatalf("log tip: %v", err)
	}
	if lastSeq != 0 || tip != [32]byte{} {
		t.Error("empty log should yield zero tip")
	}
}

func TestEventLog_DuplicateSequenceIgnored(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db, 50, 10*time.Millisecond)
	account := uuid.New().String()
	first := testEventRow(1, account)

	for _, row := range []persistence.EventRow{first, testEventRow(1, account)} {
		tx, _ := db.BeginTx(ctx, nil)
		if err := writer.WriteEventBatch(ctx, tx, []persistence.EventRow{row}); err != nil {
			t.Fatalf("write: %v", err)
		}
		tx.Commit()
	}

	var count int
	var key string
	db.QueryRow("SELECT COUNT(*), MAX(idempotency_key) FROM event_log.events").Scan(&count, &key)
	if count != 1 {
		t.Fatalf("row count: got %d, want 1", count)
	}
	if key != first.IdempotencyKey {
		t.Error("conflict resolution replaced the original row")
	}
}

func TestLoadRecentKeys(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db, 50, 10*time.Millisecond)
	account := uuid.New().String()
	rows := []persistence.EventRow{testEventRow(1, account), testEventRow(2, account)}

	tx, _ := db.BeginTx(ctx, nil)
	writer.WriteEventBatch(ctx, tx, rows)
	tx.Commit()

	loader := persistence.NewEventLogLoader(db)
	keys, err := loader.LoadRecentKeys(ctx, 10)
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys: got %d, want 2", len(keys))
	}
	// Newest first, composite event_type:idempotency_key format
	if keys[0] != "Joined:"+rows[1].IdempotencyKey {
		t.Errorf("key order/format: %s", keys[0])
	}
}

// ============================================================================
// Test: migrator
// ============================================================================

func TestMigrator_UpDownRoundTrip(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := persistence.NewMigrator(db, "../../migrations")

	// Up is idempotent: the setup already applied everything
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("repeat up: %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM public.schema_migrations").Scan(&count)
	if count != 2 {
		t.Fatalf("recorded versions: got %d, want 2", count)
	}

	// Down removes the latest version and its tables
	if err := migrator.Down(ctx); err != nil {
		t.Fatalf("down: %v", err)
	}
	db.QueryRow("SELECT COUNT(*) FROM public.schema_migrations").Scan(&count)
	if count != 1 {
		t.Errorf("versions after down: got %d, want 1", count)
	}
	var exists bool
	db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'claim_log' AND table_name = 'settlements'
	)`).Scan(&exists)
	if exists {
		t.Error("down migration left claim_log.settlements behind")
	}

	// Restore the schema for whatever runs next
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("re-up: %v", err)
	}
}

// ============================================================================
// Test: Postgres idempotency checker
// ============================================================================

func TestPostgresIdempotencyChecker(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.NewEventLogWriter(db, 50, 10*time.Millisecond)
	row := testEventRow(1, uuid.New().String())
	tx, _ := db.BeginTx(ctx, nil)
	writer.WriteEventBatch(ctx, tx, []persistence.EventRow{row})
	tx.Commit()

	checker := persistence.NewPostgresIdempotencyChecker(db)

	isDup, err := checker.IsDuplicate("Joined", row.IdempotencyKey)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !isDup {
		t.Error("persisted key should be a duplicate")
	}

	// Same key under a different event type is not a duplicate
	isDup, err = checker.IsDuplicate("Exited", row.IdempotencyKey)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if isDup {
		t.Error("key is scoped per event type")
	}
}

// ============================================================================
// Test: persistence worker
// ============================================================================

func TestPersistenceWorker_FlushesOnClose(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()
	ctx := context.Background()

	inputChan := make(chan persistence.CoreOutput, 16)
	worker := persistence.NewPersistenceWorker(db, inputChan, 50, 10*time.Millisecond, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	account := uuid.New().String()
	for seq := int64(1); seq <= 5; seq++ {
		out := persistence.CoreOutput{EventRow: testEventRow(seq, account)}
		if seq == 5 {
			out.SettlementRows = []persistence.SettlementRow{{
				SettlementID: uuid.New().String(),
				Round:        1,
				Account:      &account,
				Kind:         "claim",
				MintAmount:   10,
				Sequence:     seq,
				Timestamp:    time.Now().UTC(),
			}}
		}
		inputChan <- out
	}
	close(inputChan)

	if err := <-done; err != nil {
		t.Fatalf("worker: %v", err)
	}

	var eventCount, settlementCount int
	db.QueryRow("SELECT COUNT(*) FROM event_log.events").Scan(&eventCount)
	db.QueryRow("SELECT COUNT(*) FROM claim_log.settlements").Scan(&settlementCount)
	if eventCount != 5 {
		t.Errorf("events persisted: got %d, want 5", eventCount)
	}
	if settlementCount != 1 {
		t.Errorf("settlements persisted: got %d, want 1", settlementCount)
	}
}
