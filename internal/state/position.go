package state

import (
	"github.com/google/uuid"
)

// Position is an account's live LP deposit state. Created on first join,
// mutated on every join/exit, zeroed on exit. Historical per-round values
// live in the history ledger, not here.
type Position struct {
	AccountID uuid.UUID

	// Round of the most recent first-join (a fresh position, not a top-up)
	JoinedRound int64

	// Current LP balance deposited
	Amount int64

	// Block height after which exit is permitted
	ExitableBlock int64

	// Block of the most recent join (any join, including top-ups)
	LastJoinedBlock int64

	// Per-round join bookkeeping for the deduction time-weighting variant.
	// Parallel arrays, cleared on exit.
	JoinBlocks  []int64
	JoinAmounts []int64

	// Bumped on every mutation
	Version int64
}

// IsActive reports whether the account currently holds a deposit.
func (p *Position) IsActive() bool {
	return p != nil && p.Amount > 0
}
