package state

import (
	"sort"

	"github.com/google/uuid"
)

// PositionManager owns all live positions plus the round-indexed
// time-weighting bookkeeping (join anchors for the block-ratio variant,
// accumulated deductions for the deduction variant).
//
// Anchors and deductions are keyed by round rather than stored only on
// the live position: claims for past rounds must stay correct even after
// the account fully exits and the position is zeroed.
//
// Not thread-safe: accessed only under the extension lock.
type PositionManager struct {
	positions map[uuid.UUID]*Position

	// round -> account -> anchor block of the position newly opened in
	// that round (block-ratio variant)
	joinAnchors map[int64]map[uuid.UUID]int64

	// round -> account -> accumulated deduction (deduction variant)
	accountDeductions map[int64]map[uuid.UUID]int64

	// round -> sum of all account deductions for that round
	roundDeductions map[int64]int64
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions:         make(map[uuid.UUID]*Position),
		joinAnchors:       make(map[int64]map[uuid.UUID]int64),
		accountDeductions: make(map[int64]map[uuid.UUID]int64),
		roundDeductions:   make(map[int64]int64),
	}
}

// Get returns the live position, or nil if the account never joined or
// fully exited.
func (pm *PositionManager) Get(account uuid.UUID) *Position {
	return pm.positions[account]
}

// GetOrCreate returns the live position, creating an empty one if needed.
func (pm *PositionManager) GetOrCreate(account uuid.UUID) *Position {
	pos, ok := pm.positions[account]
	if !ok {
		pos = &Position{AccountID: account}
		pm.positions[account] = pos
	}
	return pos
}

// Remove deletes a fully exited position.
func (pm *PositionManager) Remove(account uuid.UUID) {
	delete(pm.positions, account)
}

// ActivePositions returns all positions with a nonzero deposit, sorted by
// account ID for deterministic iteration.
func (pm *PositionManager) ActivePositions() []*Position {
	result := make([]*Position, 0, len(pm.positions))
	for _, pos := range pm.positions {
		if pos.IsActive() {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountID.String() < result[j].AccountID.String()
	})
	return result
}

// --- join anchors (block-ratio variant) ---

// SetAnchor records the block at which a fresh position was opened within
// a round. Top-ups never call this, so the anchor survives until the next
// full exit + rejoin.
func (pm *PositionManager) SetAnchor(round int64, account uuid.UUID, block int64) {
	anchors, ok := pm.joinAnchors[round]
	if !ok {
		anchors = make(map[uuid.UUID]int64)
		pm.joinAnchors[round] = anchors
	}
	anchors[account] = block
}

// Anchor returns the account's anchor block for the round, or 0 if the
// position was not newly opened in that round (a continuing position).
func (pm *PositionManager) Anchor(round int64, account uuid.UUID) int64 {
	return pm.joinAnchors[round][account]
}

// --- deductions (deduction variant) ---

// AddDeduction accumulates a time-penalty deduction for the account's
// joins within a round, updating both the account total and the round total.
func (pm *PositionManager) AddDeduction(round int64, account uuid.UUID, deduction int64) {
	if deduction == 0 {
		return
	}
	deductions, ok := pm.accountDeductions[round]
	if !ok {
		deductions = make(map[uuid.UUID]int64)
		pm.accountDeductions[round] = deductions
	}
	deductions[account] += deduction
	pm.roundDeductions[round] += deduction
}

// ClearDeduction removes the account's accumulated deduction for the
// round from both totals, returning the removed amount. Called on exit so
// the exited amount no longer penalizes the current round's totals.
func (pm *PositionManager) ClearDeduction(round int64, account uuid.UUID) int64 {
	deductions, ok := pm.accountDeductions[round]
	if !ok {
		return 0
	}
	removed := deductions[account]
	if removed != 0 {
		delete(deductions, account)
		pm.roundDeductions[round] -= removed
	}
	return removed
}

// AccountDeduction returns the account's accumulated deduction for a round.
func (pm *PositionManager) AccountDeduction(round int64, account uuid.UUID) int64 {
	return pm.accountDeductions[round][account]
}

// RoundDeduction returns the round's total accumulated deduction.
func (pm *PositionManager) RoundDeduction(round int64) int64 {
	return pm.roundDeductions[round]
}
