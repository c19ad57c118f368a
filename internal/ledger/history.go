package ledger

import (
	"sort"

	"github.com/google/uuid"
)

// Checkpoint records an account's cumulative LP balance as of the end of
// a round. Checkpoints are appended in strictly increasing round order;
// same-round writes coalesce into the last checkpoint, so each round has
// at most one entry.
type Checkpoint struct {
	Round int64
	Value int64
}

// HistoryLedger is the append-only, round-indexed balance store backing
// the reward engine. It tracks a cumulative checkpoint series per account
// plus one aggregate series, supporting point-in-time lookups by round.
//
// Not thread-safe: all writes and reads happen under the extension lock.
type HistoryLedger struct {
	accounts  map[uuid.UUID][]Checkpoint
	aggregate []Checkpoint
}

func NewHistoryLedger() *HistoryLedger {
	return &HistoryLedger{
		accounts: make(map[uuid.UUID][]Checkpoint),
	}
}

// RecordDelta applies a signed balance change for the current round to
// both the account series and the aggregate series. Rounds must never
// decrease between calls; a write for an already-open round updates the
// open checkpoint in place.
func (h *HistoryLedger) RecordDelta(round int64, account uuid.UUID, delta int64) {
	h.accounts[account] = appendDelta(h.accounts[account], round, delta)
	h.aggregate = appendDelta(h.aggregate, round, delta)
}

// ValueAt returns the account's balance as of the end of the given round.
// For a round not yet reached, returns the latest known value (the round
// is treated as still open). Before any history exists, returns zero.
func (h *HistoryLedger) ValueAt(round int64, account uuid.UUID) int64 {
	return valueAt(h.accounts[account], round)
}

// TotalAt returns the aggregate joined balance as of the end of the round.
func (h *HistoryLedger) TotalAt(round int64) int64 {
	return valueAt(h.aggregate, round)
}

// LatestValue returns the account's current (open-round) balance.
func (h *HistoryLedger) LatestValue(account uuid.UUID) int64 {
	series := h.accounts[account]
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].Value
}

// LatestTotal returns the current aggregate joined balance.
func (h *HistoryLedger) LatestTotal() int64 {
	if len(h.aggregate) == 0 {
		return 0
	}
	return h.aggregate[len(h.aggregate)-1].Value
}

func appendDelta(series []Checkpoint, round int64, delta int64) []Checkpoint {
	if n := len(series); n > 0 && series[n-1].Round == round {
		series[n-1].Value += delta
		return series
	}

	prev := int64(0)
	if n := len(series); n > 0 {
		prev = series[n-1].Value
	}
	return append(series, Checkpoint{Round: round, Value: prev + delta})
}

// valueAt binary searches the round-ordered series for the last checkpoint
// with Round <= round.
func valueAt(series []Checkpoint, round int64) int64 {
	// Index of the first checkpoint with Round > round
	i := sort.Search(len(series), func(i int) bool {
		return series[i].Round > round
	})
	if i == 0 {
		return 0
	}
	return series[i-1].Value
}
