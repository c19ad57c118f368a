package core

import "errors"

// Caller-visible failures. None are retried internally; any failed
// operation leaves all ledgers unchanged.
var (
	// ErrInvalidAmount rejects a zero-amount join.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientGovernanceWeight rejects a first join whose account
	// fails the governance-vote eligibility gate.
	ErrInsufficientGovernanceWeight = errors.New("insufficient governance weight")

	// ErrZeroTotalGovernanceWeight rejects a first join while the
	// governance pool itself is empty.
	ErrZeroTotalGovernanceWeight = errors.New("zero total governance weight")

	// ErrWaitingPeriodNotElapsed rejects an exit before the lock expires.
	ErrWaitingPeriodNotElapsed = errors.New("waiting period not elapsed")

	// ErrAlreadyClaimed rejects a duplicate claim for the same (round, account).
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrRoundNotFinalized rejects claim/sweep operations for a round the
	// clock has not yet passed.
	ErrRoundNotFinalized = errors.New("round not finalized")

	// ErrInvalidJoinAsset rejects extension construction when the
	// configured pair fails validation against the expected pairing.
	ErrInvalidJoinAsset = errors.New("invalid join asset")

	// ErrNoPosition rejects an exit for an account with no active deposit.
	ErrNoPosition = errors.New("no active position")
)
