package testutil

import (
	"github.com/google/uuid"
)

// FakeClock is a settable round clock for tests.
type FakeClock struct {
	Round  int64
	Block  int64
	Origin int64
	Phase  int64
}

func (c *FakeClock) CurrentRound() int64 { return c.Round }
func (c *FakeClock) CurrentBlock() int64 { return c.Block }
func (c *FakeClock) OriginBlock() int64  { return c.Origin }
func (c *FakeClock) PhaseBlocks() int64  { return c.Phase }

// Advance moves the clock forward by blocks, rolling the round when a
// phase boundary is crossed.
func (c *FakeClock) Advance(blocks int64) {
	c.Block += blocks
	if c.Phase > 0 {
		c.Round = (c.Block - c.Origin) / c.Phase
	}
}

// FakeRewardPool serves per-round reward totals from a map.
type FakeRewardPool struct {
	Rewards map[int64]int64
	Err     error
}

func (p *FakeRewardPool) TotalRewardForRound(round int64) (int64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Rewards[round], nil
}

// FakeGovernance serves governance votes from a map.
type FakeGovernance struct {
	Votes map[uuid.UUID]int64
	Total int64
	Err   error
}

func (g *FakeGovernance) ValidVotes(account uuid.UUID) (int64, error) {
	if g.Err != nil {
		return 0, g.Err
	}
	return g.Votes[account], nil
}

func (g *FakeGovernance) TotalValidVotes() (int64, error) {
	if g.Err != nil {
		return 0, g.Err
	}
	return g.Total, nil
}

// TokenCall records one transfer instruction issued to the fake token.
type TokenCall struct {
	To     uuid.UUID
	Amount int64
}

// FakeToken records transfer and burn instructions.
type FakeToken struct {
	Transfers   []TokenCall
	Burns       []int64
	TransferErr error
	BurnErr     error
}

func (t *FakeToken) Transfer(to uuid.UUID, amount int64) error {
	if t.TransferErr != nil {
		return t.TransferErr
	}
	t.Transfers = append(t.Transfers, TokenCall{To: to, Amount: amount})
	return nil
}

func (t *FakeToken) Burn(amount int64) error {
	if t.BurnErr != nil {
		return t.BurnErr
	}
	t.Burns = append(t.Burns, amount)
	return nil
}

// TotalBurned sums all burn instructions.
func (t *FakeToken) TotalBurned() int64 {
	var total int64
	for _, b := range t.Burns {
		total += b
	}
	return total
}

// FakePair is a static AMM pair snapshot.
type FakePair struct {
	FactoryAddr string
	T0          string
	T1          string
	R0          int64
	R1          int64
	Supply      int64
	Err         error
}

func (p *FakePair) Reserves() (int64, int64, error) {
	if p.Err != nil {
		return 0, 0, p.Err
	}
	return p.R0, p.R1, nil
}

func (p *FakePair) TotalSupply() (int64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Supply, nil
}

func (p *FakePair) Token0() string  { return p.T0 }
func (p *FakePair) Token1() string  { return p.T1 }
func (p *FakePair) Factory() string { return p.FactoryAddr }
