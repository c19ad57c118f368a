package event

import (
	"github.com/google/uuid"
)

// Applied is the record of a command's effects, stored as the envelope
// payload. Replay re-applies these records verbatim: they carry every
// computed value (round, block, deduction, reward amounts) so that
// recovery never re-consults the external oracles.
type Applied interface {
	EventType() EventType

	// CanonicalBytes returns a deterministic binary encoding used as the
	// state-hash digest. Must be stable across marshal/unmarshal.
	CanonicalBytes() []byte
}

// Joined records an applied LP deposit.
type Joined struct {
	CommandID     uuid.UUID `json:"command_id"`
	AccountID     uuid.UUID `json:"account"`
	Amount        int64     `json:"amount"`
	Round         int64     `json:"round"`
	Block         int64     `json:"block"`
	NewPosition   bool      `json:"new_position"`
	ExitableBlock int64     `json:"exitable_block"`
	Deduction     int64     `json:"deduction"`
}

func (e *Joined) EventType() EventType { return EventTypeJoined }

func (e *Joined) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, e.AccountID[:]...)
	buf = appendInt64LE(buf, e.Amount)
	buf = appendInt64LE(buf, e.Round)
	buf = appendInt64LE(buf, e.Block)
	if e.NewPosition {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendInt64LE(buf, e.ExitableBlock)
	buf = appendInt64LE(buf, e.Deduction)
	return buf
}

// Exited records an applied full withdrawal.
type Exited struct {
	CommandID        uuid.UUID `json:"command_id"`
	AccountID        uuid.UUID `json:"account"`
	Amount           int64     `json:"amount"` // LP amount removed
	Round            int64     `json:"round"`
	Block            int64     `json:"block"`
	RemovedDeduction int64     `json:"removed_deduction"`
}

func (e *Exited) EventType() EventType { return EventTypeExited }

func (e *Exited) CanonicalBytes() []byte {
	buf := make([]byte, 0, 48)
	buf = append(buf, e.AccountID[:]...)
	buf = appendInt64LE(buf, e.Amount)
	buf = appendInt64LE(buf, e.Round)
	buf = appendInt64LE(buf, e.Block)
	buf = appendInt64LE(buf, e.RemovedDeduction)
	return buf
}

// RewardClaimed records one or more settled claims for an account.
// Parallel arrays: Rounds[i] was settled with Mints[i]/Burns[i] and the
// governance-ratio snapshot GovRatios[i].
type RewardClaimed struct {
	CommandID uuid.UUID `json:"command_id"`
	AccountID uuid.UUID `json:"account"`
	Rounds    []int64   `json:"rounds"`
	Mints     []int64   `json:"mints"`
	Burns     []int64   `json:"burns"`
	GovRatios []int64   `json:"gov_ratios"`
}

func (e *RewardClaimed) EventType() EventType { return EventTypeRewardClaimed }

func (e *RewardClaimed) CanonicalBytes() []byte {
	buf := make([]byte, 0, 16+len(e.Rounds)*32)
	buf = append(buf, e.AccountID[:]...)
	for i := range e.Rounds {
		buf = appendInt64LE(buf, e.Rounds[i])
		buf = appendInt64LE(buf, e.Mints[i])
		buf = appendInt64LE(buf, e.Burns[i])
		buf = appendInt64LE(buf, e.GovRatios[i])
	}
	return buf
}

// RoundSwept records an applied round-level burn sweep.
type RoundSwept struct {
	CommandID   uuid.UUID `json:"command_id"`
	Round       int64     `json:"round"`
	TotalJoined int64     `json:"total_joined"`
	BurnAmount  int64     `json:"burn_amount"`
}

func (e *RoundSwept) EventType() EventType { return EventTypeRoundSwept }

func (e *RoundSwept) CanonicalBytes() []byte {
	buf := make([]byte, 0, 24)
	buf = appendInt64LE(buf, e.Round)
	buf = appendInt64LE(buf, e.TotalJoined)
	buf = appendInt64LE(buf, e.BurnAmount)
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
