package reward

import (
	"StakeLedger/internal/ledger"
	fpmath "StakeLedger/internal/math"
	"StakeLedger/internal/oracle"
	"fmt"

	"github.com/google/uuid"
)

// Breakdown is the full result of a per-(round, account) reward
// computation. All ratios are fixed-point (Precision = 1.0); all amounts
// are in the reward token's smallest unit.
type Breakdown struct {
	Round     int64
	AccountID uuid.UUID

	LPRatio     int64
	GovRatio    int64
	BlockRatio  int64
	CappedRatio int64

	Theoretical int64
	MintReward  int64
	BurnReward  int64
}

// Engine computes the mint/burn split for a finalized round. It reads
// only finalized historical state plus the external oracles; it never
// mutates anything, so claims for distinct (round, account) pairs are
// order-independent.
type Engine struct {
	clock   oracle.Clock
	pool    oracle.RewardPool
	gov     oracle.GovernanceWeight
	history *ledger.HistoryLedger
	policy  TimeWeightingPolicy

	// Governance cap multiplier. Zero disables the cap entirely.
	govMultiplier int64
}

func NewEngine(
	clock oracle.Clock,
	pool oracle.RewardPool,
	gov oracle.GovernanceWeight,
	history *ledger.HistoryLedger,
	policy TimeWeightingPolicy,
	govMultiplier int64,
) *Engine {
	return &Engine{
		clock:         clock,
		pool:          pool,
		gov:           gov,
		history:       history,
		policy:        policy,
		govMultiplier: govMultiplier,
	}
}

// Breakdown computes the reward split for (round, account).
//
// A round that is not yet finalized, a round with no reward allocation,
// and an account with no effective participation all yield a zero
// breakdown: no speculative rewards, no error. Oracle failures propagate.
//
// Floor division everywhere: rounding always favors burn over overpay.
func (e *Engine) Breakdown(round int64, account uuid.UUID) (Breakdown, error) {
	bd := Breakdown{Round: round, AccountID: account}

	if round >= e.clock.CurrentRound() {
		return bd, nil
	}

	totalReward, err := e.pool.TotalRewardForRound(round)
	if err != nil {
		return bd, fmt.Errorf("reward pool for round %d: %w", round, err)
	}
	if totalReward == 0 {
		return bd, nil
	}

	joined := e.history.ValueAt(round, account)
	total := e.history.TotalAt(round)
	if joined == 0 || total == 0 {
		return bd, nil
	}

	joinedEff, totalEff := e.policy.EffectiveAmounts(round, account, joined, total)
	if joinedEff <= 0 || totalEff <= 0 {
		return bd, nil
	}

	bd.LPRatio = fpmath.Ratio(joinedEff, totalEff)
	bd.Theoretical = fpmath.ApplyRatio(totalReward, bd.LPRatio)
	bd.BlockRatio = e.policy.BlockRatio(round, account)

	if e.govMultiplier == 0 {
		// Cap disabled: mint the full theoretical share, scaled by the
		// time weight. The time-weighted remainder burns.
		bd.CappedRatio = bd.LPRatio
		bd.MintReward = fpmath.ApplyRatio(bd.Theoretical, bd.BlockRatio)
		bd.BurnReward = bd.Theoretical - bd.MintReward
		return bd, nil
	}

	totalVotes, err := e.gov.TotalValidVotes()
	if err != nil {
		return bd, fmt.Errorf("total governance votes: %w", err)
	}
	if totalVotes == 0 {
		// Conservative failure toward burn, never toward overpay
		bd.BurnReward = bd.Theoretical
		return bd, nil
	}

	votes, err := e.gov.ValidVotes(account)
	if err != nil {
		return bd, fmt.Errorf("governance votes for %s: %w", account, err)
	}

	bd.GovRatio = fpmath.WeightedRatio(votes, e.govMultiplier, totalVotes)
	bd.CappedRatio = fpmath.Min(bd.LPRatio, bd.GovRatio)
	if bd.BlockRatio != fpmath.Precision {
		bd.CappedRatio = fpmath.ApplyRatio(bd.CappedRatio, bd.BlockRatio)
	}

	bd.MintReward = fpmath.ApplyRatio(totalReward, bd.CappedRatio)
	bd.BurnReward = bd.Theoretical - bd.MintReward
	if bd.BurnReward < 0 {
		// Flooring guarantees mint <= theoretical when the cap binds;
		// a negative burn would mean the invariant broke upstream.
		bd.BurnReward = 0
	}

	return bd, nil
}

// GovRatioSnapshot returns the account's current raw governance ratio
// (votes / totalVotes, no multiplier) for the claim-time audit snapshot.
func (e *Engine) GovRatioSnapshot(account uuid.UUID) (int64, error) {
	totalVotes, err := e.gov.TotalValidVotes()
	if err != nil {
		return 0, err
	}
	if totalVotes == 0 {
		return 0, nil
	}
	votes, err := e.gov.ValidVotes(account)
	if err != nil {
		return 0, err
	}
	return fpmath.Ratio(votes, totalVotes), nil
}
