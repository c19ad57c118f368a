package reward

import (
	fpmath "StakeLedger/internal/math"
	"StakeLedger/internal/oracle"
	"StakeLedger/internal/state"

	"github.com/google/uuid"
)

// Variant selects the time-weighting scheme at extension construction.
type Variant int32

const (
	// VariantNoPenalty pays full weight regardless of when the position
	// was opened within the round.
	VariantNoPenalty Variant = iota

	// VariantBlockRatio pro-rates the reward of a freshly opened position
	// by the fraction of the round it was actually held.
	VariantBlockRatio

	// VariantDeduction subtracts an accumulated time penalty
	// (amount * fraction-of-round-missed) from the effective LP share.
	VariantDeduction
)

func (v Variant) String() string {
	switch v {
	case VariantBlockRatio:
		return "block_ratio"
	case VariantDeduction:
		return "deduction"
	default:
		return "none"
	}
}

// ParseVariant maps a config string to a Variant. Unknown values fall
// back to no penalty.
func ParseVariant(s string) Variant {
	switch s {
	case "block_ratio":
		return VariantBlockRatio
	case "deduction":
		return VariantDeduction
	default:
		return VariantNoPenalty
	}
}

// TimeWeightingPolicy is the strategy hook for the per-variant steps of
// the reward computation. The skeleton (ratio, governance cap, mint/burn
// split) is shared; only join-time bookkeeping and the weighting factor
// differ between variants.
type TimeWeightingPolicy interface {
	Variant() Variant

	// ComputeJoinDeduction returns the time-penalty deduction a join of
	// `amount` at `block` accrues for `round`. Zero for variants that do
	// not use deductions.
	ComputeJoinDeduction(round, block, amount int64) int64

	// RecordJoin stores variant bookkeeping for an applied join. The
	// deduction is passed in (not recomputed) so replay applies the
	// originally recorded value.
	RecordJoin(round, block int64, pos *state.Position, amount, deduction int64, newPosition bool)

	// RecordExit clears variant bookkeeping for a full exit and returns
	// the deduction removed from the round's totals.
	RecordExit(round int64, pos *state.Position) int64

	// BlockRatio returns the fixed-point time weight for the account in
	// the round. Precision means full weight.
	BlockRatio(round int64, account uuid.UUID) int64

	// EffectiveAmounts adjusts the historical joined/total balances for
	// the round before the LP ratio is computed.
	EffectiveAmounts(round int64, account uuid.UUID, joined, total int64) (int64, int64)
}

// NewPolicy constructs the policy for a variant.
func NewPolicy(v Variant, clock oracle.Clock, positions *state.PositionManager) TimeWeightingPolicy {
	switch v {
	case VariantBlockRatio:
		return &BlockRatioPenalty{clock: clock, positions: positions}
	case VariantDeduction:
		return &AccumulatedDeductionPenalty{clock: clock, positions: positions}
	default:
		return &NoPenalty{}
	}
}

// roundStartBlock returns the first block of a round.
func roundStartBlock(clock oracle.Clock, round int64) int64 {
	return clock.OriginBlock() + round*clock.PhaseBlocks()
}

// elapsedInRound clamps block-within-round progress to [0, phaseBlocks].
func elapsedInRound(clock oracle.Clock, round, block int64) int64 {
	elapsed := block - roundStartBlock(clock, round)
	if elapsed < 0 {
		return 0
	}
	if phase := clock.PhaseBlocks(); elapsed > phase {
		return phase
	}
	return elapsed
}

// --- NoPenalty ---

// NoPenalty is the simple variant: no time weighting at all.
type NoPenalty struct{}

func (p *NoPenalty) Variant() Variant { return VariantNoPenalty }

func (p *NoPenalty) ComputeJoinDeduction(round, block, amount int64) int64 { return 0 }

func (p *NoPenalty) RecordJoin(round, block int64, pos *state.Position, amount, deduction int64, newPosition bool) {
}

func (p *NoPenalty) RecordExit(round int64, pos *state.Position) int64 { return 0 }

func (p *NoPenalty) BlockRatio(round int64, account uuid.UUID) int64 {
	return fpmath.Precision
}

func (p *NoPenalty) EffectiveAmounts(round int64, account uuid.UUID, joined, total int64) (int64, int64) {
	return joined, total
}

// --- BlockRatioPenalty ---

// BlockRatioPenalty anchors a freshly opened position to its join block
// and pays only the remaining fraction of that round. Continuing
// positions (anchored in an earlier round) and top-ups carry no penalty.
type BlockRatioPenalty struct {
	clock     oracle.Clock
	positions *state.PositionManager
}

func (p *BlockRatioPenalty) Variant() Variant { return VariantBlockRatio }

func (p *BlockRatioPenalty) ComputeJoinDeduction(round, block, amount int64) int64 { return 0 }

func (p *BlockRatioPenalty) RecordJoin(round, block int64, pos *state.Position, amount, deduction int64, newPosition bool) {
	// Top-ups never reset the anchor
	if newPosition {
		p.positions.SetAnchor(round, pos.AccountID, block)
	}
}

func (p *BlockRatioPenalty) RecordExit(round int64, pos *state.Position) int64 { return 0 }

func (p *BlockRatioPenalty) BlockRatio(round int64, account uuid.UUID) int64 {
	anchor := p.positions.Anchor(round, account)
	if anchor == 0 {
		// Continuing position: full weight
		return fpmath.Precision
	}
	phase := p.clock.PhaseBlocks()
	remaining := phase - elapsedInRound(p.clock, round, anchor)
	return fpmath.Ratio(remaining, phase)
}

func (p *BlockRatioPenalty) EffectiveAmounts(round int64, account uuid.UUID, joined, total int64) (int64, int64) {
	return joined, total
}

// --- AccumulatedDeductionPenalty ---

// AccumulatedDeductionPenalty encodes the time penalty directly into the
// LP ratio: every join accrues amount * elapsed / phaseBlocks against
// both the account and the round, and the effective balances subtract
// those deductions before the ratio is computed.
type AccumulatedDeductionPenalty struct {
	clock     oracle.Clock
	positions *state.PositionManager
}

func (p *AccumulatedDeductionPenalty) Variant() Variant { return VariantDeduction }

func (p *AccumulatedDeductionPenalty) ComputeJoinDeduction(round, block, amount int64) int64 {
	phase := p.clock.PhaseBlocks()
	if phase == 0 {
		return 0
	}
	return fpmath.MulDiv(amount, elapsedInRound(p.clock, round, block), phase)
}

func (p *AccumulatedDeductionPenalty) RecordJoin(round, block int64, pos *state.Position, amount, deduction int64, newPosition bool) {
	p.positions.AddDeduction(round, pos.AccountID, deduction)
	pos.JoinBlocks = append(pos.JoinBlocks, block)
	pos.JoinAmounts = append(pos.JoinAmounts, amount)
}

func (p *AccumulatedDeductionPenalty) RecordExit(round int64, pos *state.Position) int64 {
	removed := p.positions.ClearDeduction(round, pos.AccountID)
	pos.JoinBlocks = nil
	pos.JoinAmounts = nil
	return removed
}

func (p *AccumulatedDeductionPenalty) BlockRatio(round int64, account uuid.UUID) int64 {
	// The deduction subtraction already encodes the time penalty
	return fpmath.Precision
}

func (p *AccumulatedDeductionPenalty) EffectiveAmounts(round int64, account uuid.UUID, joined, total int64) (int64, int64) {
	joinedEff := joined - p.positions.AccountDeduction(round, account)
	totalEff := total - p.positions.RoundDeduction(round)
	return joinedEff, totalEff
}
