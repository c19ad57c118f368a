package oracle

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StateOracle is an in-memory cache of externally published oracle state:
// the round clock, per-round reward allocations, governance vote weights,
// and the AMM pair snapshot. It is fed by the oracle ingestion loop and
// read synchronously by the extension.
//
// Reads return the last published value; a read before the first clock
// publish fails loudly rather than defaulting to round 0.
type StateOracle struct {
	mu sync.RWMutex

	clockSet     bool
	currentRound int64
	currentBlock int64
	originBlock  int64
	phaseBlocks  int64

	rewards map[int64]int64 // round -> total action reward

	votes      map[uuid.UUID]int64
	totalVotes int64

	pairSet     bool
	factory     string
	token0      string
	token1      string
	reserve0    int64
	reserve1    int64
	totalSupply int64
}

func NewStateOracle() *StateOracle {
	return &StateOracle{
		rewards: make(map[int64]int64),
		votes:   make(map[uuid.UUID]int64),
	}
}

// --- feed side ---

// SetClock updates the round clock. Rounds never move backwards.
func (o *StateOracle) SetClock(round, block, originBlock, phaseBlocks int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.clockSet && round < o.currentRound {
		return fmt.Errorf("clock round moved backwards: %d -> %d", o.currentRound, round)
	}

	o.clockSet = true
	o.currentRound = round
	o.currentBlock = block
	o.originBlock = originBlock
	o.phaseBlocks = phaseBlocks
	return nil
}

// SetReward records the total reward pool allocated for a round.
func (o *StateOracle) SetReward(round, totalReward int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rewards[round] = totalReward
}

// SetVotes updates an account's valid governance votes and the global total.
func (o *StateOracle) SetVotes(account uuid.UUID, validVotes, totalValidVotes int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.votes[account] = validVotes
	o.totalVotes = totalValidVotes
}

// SetPair records the AMM pair snapshot for the join asset.
func (o *StateOracle) SetPair(factory, token0, token1 string, reserve0, reserve1, totalSupply int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pairSet = true
	o.factory = factory
	o.token0 = token0
	o.token1 = token1
	o.reserve0 = reserve0
	o.reserve1 = reserve1
	o.totalSupply = totalSupply
}

// --- Clock ---

func (o *StateOracle) CurrentRound() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentRound
}

func (o *StateOracle) CurrentBlock() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentBlock
}

func (o *StateOracle) OriginBlock() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.originBlock
}

func (o *StateOracle) PhaseBlocks() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phaseBlocks
}

// Ready reports whether the clock has been published at least once.
func (o *StateOracle) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.clockSet
}

// PairReady reports whether a pair snapshot has been published.
func (o *StateOracle) PairReady() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pairSet
}

// --- RewardPool ---

func (o *StateOracle) TotalRewardForRound(round int64) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rewards[round], nil
}

// --- GovernanceWeight ---

func (o *StateOracle) ValidVotes(account uuid.UUID) (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.votes[account], nil
}

func (o *StateOracle) TotalValidVotes() (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.totalVotes, nil
}

// --- PairOracle ---

func (o *StateOracle) Reserves() (int64, int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.pairSet {
		return 0, 0, fmt.Errorf("pair snapshot not published")
	}
	return o.reserve0, o.reserve1, nil
}

func (o *StateOracle) TotalSupply() (int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.pairSet {
		return 0, fmt.Errorf("pair snapshot not published")
	}
	return o.totalSupply, nil
}

func (o *StateOracle) Token0() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.token0
}

func (o *StateOracle) Token1() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.token1
}

func (o *StateOracle) Factory() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.factory
}
