package reward_test

import (
	"testing"

	"StakeLedger/internal/ledger"
	fpmath "StakeLedger/internal/math"
	"StakeLedger/internal/reward"
	"StakeLedger/internal/state"
	"StakeLedger/internal/testutil"

	"github.com/google/uuid"
)

type engineFixture struct {
	clock     *testutil.FakeClock
	pool      *testutil.FakeRewardPool
	gov       *testutil.FakeGovernance
	history   *ledger.HistoryLedger
	positions *state.PositionManager
	policy    reward.TimeWeightingPolicy
	engine    *reward.Engine
}

func newEngineFixture(variant reward.Variant, govMultiplier int64) *engineFixture {
	f := &engineFixture{
		clock:     &testutil.FakeClock{Round: 2, Block: 250, Origin: 0, Phase: 100},
		pool:      &testutil.FakeRewardPool{Rewards: map[int64]int64{1: 1000}},
		gov:       &testutil.FakeGovernance{Votes: map[uuid.UUID]int64{}, Total: 1000},
		history:   ledger.NewHistoryLedger(),
		positions: state.NewPositionManager(),
	}
	f.policy = reward.NewPolicy(variant, f.clock, f.positions)
	f.engine = reward.NewEngine(f.clock, f.pool, f.gov, f.history, f.policy, govMultiplier)
	return f
}

// ============================================================================
// Test: breakdown governance cap
// ============================================================================

func TestBreakdown_GovernanceCapBinds(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	a := uuid.New()
	b := uuid.New()

	f.history.RecordDelta(1, a, 100)
	f.history.RecordDelta(1, b, 200)
	f.gov.Votes[a] = 100
	f.gov.Votes[b] = 200

	// Account A: lpRatio 1/3, theoretical 333, govRatio 100*2/1000 = 0.2
	// Cap binds: mint = 1000 * 0.2 = 200, burn = 133
	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.Theoretical != 333 {
		t.Errorf("theoretical: got %d, want 333", bd.Theoretical)
	}
	if bd.MintReward != 200 {
		t.Errorf("mint: got %d, want 200", bd.MintReward)
	}
	if bd.BurnReward != 133 {
		t.Errorf("burn: got %d, want 133", bd.BurnReward)
	}

	// Account B: lpRatio 2/3, theoretical 666, govRatio 0.4
	// Cap binds: mint 400, burn 266
	bd, err = f.engine.Breakdown(1, b)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.MintReward != 400 || bd.BurnReward != 266 {
		t.Errorf("account B split: got %d/%d, want 400/266", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_CapSlack(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	a := uuid.New()

	f.history.RecordDelta(1, a, 100)
	// Enough votes that the gov ratio exceeds the LP ratio
	f.gov.Votes[a] = 900

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	// Sole participant: lpRatio 1.0, cap does not bind, everything mints
	if bd.MintReward != 1000 || bd.BurnReward != 0 {
		t.Errorf("split: got %d/%d, want 1000/0", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_ZeroTotalVotesBurnsAll(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	a := uuid.New()

	f.history.RecordDelta(1, a, 100)
	f.gov.Total = 0

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.MintReward != 0 {
		t.Errorf("mint with zero total votes: got %d, want 0", bd.MintReward)
	}
	if bd.BurnReward != bd.Theoretical {
		t.Errorf("burn: got %d, want theoretical %d", bd.BurnReward, bd.Theoretical)
	}
}

func TestBreakdown_CapDisabled(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 0)
	a := uuid.New()
	b := uuid.New()

	f.history.RecordDelta(1, a, 100)
	f.history.RecordDelta(1, b, 200)

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	// No governance cap, no time weight: the full theoretical share mints
	if bd.MintReward != bd.Theoretical || bd.BurnReward != 0 {
		t.Errorf("split: got %d/%d, want %d/0", bd.MintReward, bd.BurnReward, bd.Theoretical)
	}
}

func TestBreakdown_Conservation(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	accounts := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	amounts := []int64{100, 200, 700}
	votes := []int64{50, 100, 333}

	for i, a := range accounts {
		f.history.RecordDelta(1, a, amounts[i])
		f.gov.Votes[a] = votes[i]
	}

	var totalSplit int64
	for _, a := range accounts {
		bd, err := f.engine.Breakdown(1, a)
		if err != nil {
			t.Fatalf("Breakdown: %v", err)
		}
		if bd.MintReward+bd.BurnReward != bd.Theoretical {
			t.Errorf("mint+burn != theoretical for %s: %d+%d != %d",
				a, bd.MintReward, bd.BurnReward, bd.Theoretical)
		}
		totalSplit += bd.Theoretical
	}
	// Floor division leaves dust in the pool, never overdraws it
	if totalSplit > 1000 {
		t.Errorf("total split %d exceeds pool 1000", totalSplit)
	}
}

// ============================================================================
// Test: breakdown zero paths
// ============================================================================

func TestBreakdown_UnfinalizedRoundIsZero(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	a := uuid.New()
	f.history.RecordDelta(1, a, 100)
	f.pool.Rewards[2] = 1000

	// Round 2 is the current round: not finalized
	bd, err := f.engine.Breakdown(2, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.MintReward != 0 || bd.BurnReward != 0 || bd.Theoretical != 0 {
		t.Errorf("unfinalized round should be all-zero: %+v", bd)
	}
}

func TestBreakdown_NoAllocationIsZero(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	a := uuid.New()
	f.history.RecordDelta(0, a, 100)

	bd, err := f.engine.Breakdown(0, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.Theoretical != 0 {
		t.Errorf("round without allocation should be zero, got %+v", bd)
	}
}

func TestBreakdown_NoParticipationIsZero(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)

	bd, err := f.engine.Breakdown(1, uuid.New())
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.Theoretical != 0 || bd.MintReward != 0 {
		t.Errorf("non-participant should be zero, got %+v", bd)
	}
}

// ============================================================================
// Test: block-ratio time weighting
// ============================================================================

func TestBreakdown_BlockRatioFreshPosition(t *testing.T) {
	f := newEngineFixture(reward.VariantBlockRatio, 0)
	a := uuid.New()

	// Round 1 spans blocks 100-199; a fresh join at block 150 held half of it
	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	f.policy.RecordJoin(1, 150, pos, 100, 0, true)
	f.history.RecordDelta(1, a, 100)

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.BlockRatio != fpmath.Precision/2 {
		t.Errorf("block ratio: got %d, want %d", bd.BlockRatio, fpmath.Precision/2)
	}
	if bd.MintReward != 500 || bd.BurnReward != 500 {
		t.Errorf("split: got %d/%d, want 500/500", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_BlockRatioJoinAtRoundStart(t *testing.T) {
	f := newEngineFixture(reward.VariantBlockRatio, 0)
	a := uuid.New()

	// Joining at block 100, the first block of round 1, holds the whole round
	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	f.policy.RecordJoin(1, 100, pos, 100, 0, true)
	f.history.RecordDelta(1, a, 100)

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.BlockRatio != fpmath.Precision {
		t.Errorf("round-start block ratio: got %d, want Precision", bd.BlockRatio)
	}
	if bd.MintReward != 1000 || bd.BurnReward != 0 {
		t.Errorf("split: got %d/%d, want 1000/0", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_BlockRatioJoinAtLastBlock(t *testing.T) {
	f := newEngineFixture(reward.VariantBlockRatio, 0)
	a := uuid.New()

	// Block 199 is the last block of round 1: one block of weight remains
	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	f.policy.RecordJoin(1, 199, pos, 100, 0, true)
	f.history.RecordDelta(1, a, 100)

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.BlockRatio != fpmath.Precision/100 {
		t.Errorf("last-block ratio: got %d, want %d", bd.BlockRatio, fpmath.Precision/100)
	}
	if bd.MintReward != 10 || bd.BurnReward != 990 {
		t.Errorf("split: got %d/%d, want 10/990", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_BlockRatioGenesisJoinFullWeight(t *testing.T) {
	f := newEngineFixture(reward.VariantBlockRatio, 0)
	a := uuid.New()
	f.pool.Rewards[0] = 1000

	// A join at block 0 of round 0 stores a zero anchor, which reads back as
	// a continuing position. Both interpretations yield full weight; this
	// pins the behavior.
	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	f.policy.RecordJoin(0, 0, pos, 100, 0, true)
	f.history.RecordDelta(0, a, 100)

	bd, err := f.engine.Breakdown(0, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.BlockRatio != fpmath.Precision {
		t.Errorf("genesis join block ratio: got %d, want Precision", bd.BlockRatio)
	}
	if bd.MintReward != 1000 || bd.BurnReward != 0 {
		t.Errorf("split: got %d/%d, want 1000/0", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_BlockRatioContinuingPosition(t *testing.T) {
	f := newEngineFixture(reward.VariantBlockRatio, 0)
	a := uuid.New()

	// Position opened in round 0: no anchor for round 1, full weight
	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	f.policy.RecordJoin(0, 50, pos, 100, 0, true)
	f.history.RecordDelta(0, a, 100)

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.BlockRatio != fpmath.Precision {
		t.Errorf("continuing position block ratio: got %d, want Precision", bd.BlockRatio)
	}
	if bd.MintReward != 1000 || bd.BurnReward != 0 {
		t.Errorf("split: got %d/%d, want 1000/0", bd.MintReward, bd.BurnReward)
	}
}

func TestBreakdown_BlockRatioTopUpKeepsAnchor(t *testing.T) {
	f := newEngineFixture(reward.VariantBlockRatio, 0)
	a := uuid.New()

	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	f.policy.RecordJoin(1, 150, pos, 100, 0, true)
	f.history.RecordDelta(1, a, 100)

	// Top-up later in the round must not move the anchor
	pos.Amount += 100
	f.policy.RecordJoin(1, 190, pos, 100, 0, false)
	f.history.RecordDelta(1, a, 100)

	if got := f.positions.Anchor(1, a); got != 150 {
		t.Errorf("anchor after top-up: got %d, want 150", got)
	}
}

// ============================================================================
// Test: accumulated-deduction time weighting
// ============================================================================

func TestBreakdown_DeductionAdjustsEffectiveAmounts(t *testing.T) {
	f := newEngineFixture(reward.VariantDeduction, 0)
	a := uuid.New()
	b := uuid.New()

	// b joins at the round-1 boundary (block 100): no penalty
	posB := f.positions.GetOrCreate(b)
	posB.Amount = 100
	dedB := f.policy.ComputeJoinDeduction(1, 100, 100)
	f.policy.RecordJoin(1, 100, posB, 100, dedB, true)
	f.history.RecordDelta(1, b, 100)

	// a joins mid-round (block 150): deduction 100 * 50/100 = 50
	posA := f.positions.GetOrCreate(a)
	posA.Amount = 100
	dedA := f.policy.ComputeJoinDeduction(1, 150, 100)
	if dedA != 50 {
		t.Fatalf("join deduction: got %d, want 50", dedA)
	}
	f.policy.RecordJoin(1, 150, posA, 100, dedA, true)
	f.history.RecordDelta(1, a, 100)

	// Effective: a = 50, b = 100, total = 150
	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.LPRatio != fpmath.Ratio(50, 150) {
		t.Errorf("lp ratio: got %d, want %d", bd.LPRatio, fpmath.Ratio(50, 150))
	}
	if bd.MintReward != 333 {
		t.Errorf("mint: got %d, want 333", bd.MintReward)
	}

	bd, err = f.engine.Breakdown(1, b)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.MintReward != 666 {
		t.Errorf("mint: got %d, want 666", bd.MintReward)
	}
}

func TestBreakdown_DeductionFullyPenalizedIsZero(t *testing.T) {
	f := newEngineFixture(reward.VariantDeduction, 0)
	a := uuid.New()

	// Join at the final block of round 1: deduction equals the full amount
	pos := f.positions.GetOrCreate(a)
	pos.Amount = 100
	ded := f.policy.ComputeJoinDeduction(1, 200, 100)
	if ded != 100 {
		t.Fatalf("join deduction: got %d, want 100", ded)
	}
	f.policy.RecordJoin(1, 200, pos, 100, ded, true)
	f.history.RecordDelta(1, a, 100)

	bd, err := f.engine.Breakdown(1, a)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if bd.MintReward != 0 || bd.BurnReward != 0 {
		t.Errorf("fully penalized join should earn nothing: %+v", bd)
	}
}

// ============================================================================
// Test: GovRatioSnapshot
// ============================================================================

func TestGovRatioSnapshot(t *testing.T) {
	f := newEngineFixture(reward.VariantNoPenalty, 2)
	a := uuid.New()
	f.gov.Votes[a] = 250

	// Raw ratio, no multiplier: 250/1000 = 0.25
	snap, err := f.engine.GovRatioSnapshot(a)
	if err != nil {
		t.Fatalf("GovRatioSnapshot: %v", err)
	}
	if snap != fpmath.Precision/4 {
		t.Errorf("snapshot: got %d, want %d", snap, fpmath.Precision/4)
	}

	f.gov.Total = 0
	snap, err = f.engine.GovRatioSnapshot(a)
	if err != nil {
		t.Fatalf("GovRatioSnapshot: %v", err)
	}
	if snap != 0 {
		t.Errorf("snapshot with zero total: got %d, want 0", snap)
	}
}

// ============================================================================
// Test: ParseVariant
// ============================================================================

func TestParseVariant(t *testing.T) {
	if reward.ParseVariant("block_ratio") != reward.VariantBlockRatio {
		t.Error("block_ratio")
	}
	if reward.ParseVariant("deduction") != reward.VariantDeduction {
		t.Error("deduction")
	}
	if reward.ParseVariant("anything-else") != reward.VariantNoPenalty {
		t.Error("unknown should fall back to no penalty")
	}
}
