package state

// RoundBurnRecord is the once-per-round sweep result. Idempotent: once
// Burned is set, a repeat sweep must not burn again.
type RoundBurnRecord struct {
	Round       int64
	TotalJoined int64
	BurnAmount  int64
	Burned      bool
}

// BurnStore tracks the per-round burn sweep state.
// Not thread-safe: accessed only under the extension lock.
type BurnStore struct {
	records map[int64]*RoundBurnRecord
}

func NewBurnStore() *BurnStore {
	return &BurnStore{
		records: make(map[int64]*RoundBurnRecord),
	}
}

// Get returns the sweep record for a round, or nil if never swept.
func (bs *BurnStore) Get(round int64) *RoundBurnRecord {
	return bs.records[round]
}

// Record marks a round as swept. A duplicate Record returns the original
// record unchanged.
func (bs *BurnStore) Record(round, totalJoined, burnAmount int64) *RoundBurnRecord {
	if existing, ok := bs.records[round]; ok {
		return existing
	}
	rec := &RoundBurnRecord{
		Round:       round,
		TotalJoined: totalJoined,
		BurnAmount:  burnAmount,
		Burned:      true,
	}
	bs.records[round] = rec
	return rec
}
