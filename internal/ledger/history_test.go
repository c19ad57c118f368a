package ledger_test

import (
	"testing"

	"StakeLedger/internal/ledger"

	"github.com/google/uuid"
)

// ============================================================================
// Test: HistoryLedger
// ============================================================================

func TestHistoryLedger_EmptyReturnsZero(t *testing.T) {
	h := ledger.NewHistoryLedger()
	account := uuid.New()

	if h.ValueAt(5, account) != 0 {
		t.Error("empty ledger should return 0 for any round")
	}
	if h.TotalAt(5) != 0 {
		t.Error("empty ledger should return 0 aggregate")
	}
	if h.LatestValue(account) != 0 || h.LatestTotal() != 0 {
		t.Error("empty ledger latest values should be 0")
	}
}

func TestHistoryLedger_SameRoundCoalesces(t *testing.T) {
	h := ledger.NewHistoryLedger()
	account := uuid.New()

	h.RecordDelta(3, account, 100)
	h.RecordDelta(3, account, 50)

	if got := h.ValueAt(3, account); got != 150 {
		t.Errorf("coalesced round value: got %d, want 150", got)
	}
	// Round 2 predates any history
	if got := h.ValueAt(2, account); got != 0 {
		t.Errorf("value before first checkpoint: got %d, want 0", got)
	}
}

func TestHistoryLedger_PointInTimeLookup(t *testing.T) {
	h := ledger.NewHistoryLedger()
	account := uuid.New()

	h.RecordDelta(1, account, 100)
	h.RecordDelta(4, account, 200)
	h.RecordDelta(7, account, -300)

	cases := []struct {
		round int64
		want  int64
	}{
		{0, 0},
		{1, 100},
		{2, 100}, // No checkpoint: carries the round-1 value
		{3, 100},
		{4, 300},
		{6, 300},
		{7, 0},
		{100, 0}, // Far future: latest value
	}
	for _, c := range cases {
		if got := h.ValueAt(c.round, account); got != c.want {
			t.Errorf("ValueAt(%d): got %d, want %d", c.round, got, c.want)
		}
	}
}

func TestHistoryLedger_AggregateTracksAllAccounts(t *testing.T) {
	h := ledger.NewHistoryLedger()
	a := uuid.New()
	b := uuid.New()

	h.RecordDelta(1, a, 100)
	h.RecordDelta(1, b, 200)
	h.RecordDelta(2, a, -100)

	if got := h.TotalAt(1); got != 300 {
		t.Errorf("TotalAt(1): got %d, want 300", got)
	}
	if got := h.TotalAt(2); got != 200 {
		t.Errorf("TotalAt(2): got %d, want 200", got)
	}
	if got := h.LatestTotal(); got != 200 {
		t.Errorf("LatestTotal: got %d, want 200", got)
	}
}

func TestHistoryLedger_ExitToZeroKeepsHistory(t *testing.T) {
	h := ledger.NewHistoryLedger()
	account := uuid.New()

	h.RecordDelta(1, account, 500)
	h.RecordDelta(3, account, -500)

	// The round-1 balance stays visible for claims even after a full exit
	if got := h.ValueAt(1, account); got != 500 {
		t.Errorf("historical value after exit: got %d, want 500", got)
	}
	if got := h.ValueAt(3, account); got != 0 {
		t.Errorf("value at exit round: got %d, want 0", got)
	}
	if h.LatestValue(account) != 0 {
		t.Error("latest value after full exit should be 0")
	}
}
