package core

import (
	"StakeLedger/internal/event"

	"github.com/google/uuid"
)

// SettlementRecord is the per-(round, account) payout row derived from a
// claim or sweep, persisted alongside the event for audit queries.
type SettlementRecord struct {
	SettlementID uuid.UUID
	Round        int64

	// Nil for round-level sweeps
	Account *uuid.UUID

	// "claim" or "sweep"
	Kind string

	MintAmount int64
	BurnAmount int64

	// Governance ratio snapshot captured at settlement time (claims only)
	GovRatio int64
}

// CoreOutput is the unit handed to the persistence and projection workers
// after a command is applied.
type CoreOutput struct {
	Envelope    event.Envelope
	Applied     event.Applied
	Settlements []SettlementRecord
}

// Result is the caller-facing outcome of an applied command.
type Result struct {
	// Settled rounds with their mint/burn splits (claims). Parallel arrays.
	Rounds []int64
	Mints  []int64
	Burns  []int64

	// Governance ratio snapshot recorded with the claim
	GovRatio int64

	// Pool amount burned by a sweep
	BurnAmount int64

	// True when the command was deduplicated and nothing was applied
	Duplicate bool
}
