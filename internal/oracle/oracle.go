package oracle

import (
	"github.com/google/uuid"
)

// Clock is the external round/phase clock. Rounds advance monotonically
// with block height: round R is finalized once CurrentRound() > R.
type Clock interface {
	CurrentRound() int64
	CurrentBlock() int64
	OriginBlock() int64
	PhaseBlocks() int64
}

// RewardPool reports the total reward allocated to this extension's
// action for a round. Returns 0 if nothing was allocated.
type RewardPool interface {
	TotalRewardForRound(round int64) (int64, error)
}

// GovernanceWeight reports per-account and total valid governance votes.
type GovernanceWeight interface {
	ValidVotes(account uuid.UUID) (int64, error)
	TotalValidVotes() (int64, error)
}

// Token performs the side-effecting reward transfer and burn.
type Token interface {
	Transfer(to uuid.UUID, amount int64) error
	Burn(amount int64) error
}

// PairOracle exposes the AMM pair backing the LP join asset. Used for
// construction-time pair validation and the display-only joined-value
// conversion, never for reward math.
type PairOracle interface {
	Reserves() (r0, r1 int64, err error)
	TotalSupply() (int64, error)
	Token0() string
	Token1() string
	Factory() string
}
