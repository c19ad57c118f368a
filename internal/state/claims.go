package state

import (
	"github.com/google/uuid"
)

// ClaimRecord is the immutable settlement record for one (round, account)
// claim. Created exactly once at claim time; a second claim for the same
// pair must fail, never overwrite.
type ClaimRecord struct {
	Round     int64
	AccountID uuid.UUID

	// Settled split of the round's reward for this account
	MintReward int64
	BurnReward int64

	// Point-in-time snapshot of the account's governance ratio at claim
	// time. Pure audit value: never re-read for reward math.
	GovRatioAtClaim int64
}

type claimKey struct {
	round   int64
	account uuid.UUID
}

// ClaimStore tracks claim-once state per (round, account).
// Not thread-safe: accessed only under the extension lock.
type ClaimStore struct {
	records map[claimKey]*ClaimRecord
}

func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		records: make(map[claimKey]*ClaimRecord),
	}
}

// Claimed reports whether the pair has already settled.
func (cs *ClaimStore) Claimed(round int64, account uuid.UUID) bool {
	_, ok := cs.records[claimKey{round, account}]
	return ok
}

// Get returns the settled record, or nil if unclaimed.
func (cs *ClaimStore) Get(round int64, account uuid.UUID) *ClaimRecord {
	return cs.records[claimKey{round, account}]
}

// Record transitions the pair to Claimed. The caller must have checked
// Claimed first; a duplicate Record is a logic error and is ignored to
// preserve the original record's immutability.
func (cs *ClaimStore) Record(round int64, account uuid.UUID, mint, burn, govRatio int64) *ClaimRecord {
	key := claimKey{round, account}
	if existing, ok := cs.records[key]; ok {
		return existing
	}
	rec := &ClaimRecord{
		Round:           round,
		AccountID:       account,
		MintReward:      mint,
		BurnReward:      burn,
		GovRatioAtClaim: govRatio,
	}
	cs.records[key] = rec
	return rec
}

// Len returns the number of settled claims.
func (cs *ClaimStore) Len() int {
	return len(cs.records)
}
