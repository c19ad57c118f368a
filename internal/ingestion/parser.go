package ingestion

import (
	"encoding/json"
	"fmt"

	"StakeLedger/internal/event"
	"StakeLedger/internal/oracle"

	"github.com/google/uuid"
)

// ParseRawCommand converts a RawEvent (JSON bytes + event type string) into
// a typed command. The ingestion shell validates, parses, and converts raw
// messages before sending them to the deterministic core.
func ParseRawCommand(raw RawEvent, eventType string) (event.Command, error) {
	switch eventType {
	case "Join":
		return parseJoin(raw.Data)
	case "Exit":
		return parseExit(raw.Data)
	case "Claim":
		return parseClaim(raw.Data)
	case "ClaimBatch":
		return parseClaimBatch(raw.Data)
	case "Sweep":
		return parseSweep(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", eventType)
	}
}

// OracleUpdate is a parsed oracle feed message, applied to the state oracle
// by the ingestion loop.
type OracleUpdate interface {
	Apply(so *oracle.StateOracle) error
}

// ParseOracleUpdate converts an oracle feed message into an OracleUpdate.
func ParseOracleUpdate(raw RawEvent, eventType string) (OracleUpdate, error) {
	switch eventType {
	case "ClockUpdate":
		return parseClockUpdate(raw.Data)
	case "RewardUpdate":
		return parseRewardUpdate(raw.Data)
	case "VotesUpdate":
		return parseVotesUpdate(raw.Data)
	case "PairUpdate":
		return parsePairUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown oracle feed type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type joinJSON struct {
	CommandID   string `json:"command_id"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseJoin(data []byte) (*event.JoinCommand, error) {
	var j joinJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Join: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.JoinCommand{
		CommandID:   commandID,
		AccountID:   account,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type exitJSON struct {
	CommandID   string `json:"command_id"`
	Account     string `json:"account"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseExit(data []byte) (*event.ExitCommand, error) {
	var j exitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Exit: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	return &event.ExitCommand{
		CommandID:   commandID,
		AccountID:   account,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type claimJSON struct {
	CommandID   string  `json:"command_id"`
	Account     string  `json:"account"`
	Round       *int64  `json:"round,omitempty"`
	Rounds      []int64 `json:"rounds,omitempty"`
	Sequence    int64   `json:"sequence"`
	TimestampUs int64   `json:"timestamp_us"`
}

func parseClaim(data []byte) (*event.ClaimCommand, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Claim: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	if j.Round == nil {
		return nil, fmt.Errorf("parse Claim: round required")
	}
	return &event.ClaimCommand{
		CommandID:   commandID,
		AccountID:   account,
		Round:       *j.Round,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

func parseClaimBatch(data []byte) (*event.ClaimBatchCommand, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimBatch: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	account, err := uuid.Parse(j.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	if len(j.Rounds) == 0 {
		return nil, fmt.Errorf("parse ClaimBatch: rounds required")
	}
	return &event.ClaimBatchCommand{
		CommandID:   commandID,
		AccountID:   account,
		Rounds:      j.Rounds,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

type sweepJSON struct {
	CommandID   string `json:"command_id"`
	Round       int64  `json:"round"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSweep(data []byte) (*event.SweepCommand, error) {
	var j sweepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Sweep: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	return &event.SweepCommand{
		CommandID:   commandID,
		Round:       j.Round,
		Sequence:    j.Sequence,
		TimestampUs: j.TimestampUs,
	}, nil
}

// --- oracle feeds ---

// ClockUpdate advances the round clock.
type ClockUpdate struct {
	Round       int64 `json:"round"`
	Block       int64 `json:"block"`
	OriginBlock int64 `json:"origin_block"`
	PhaseBlocks int64 `json:"phase_blocks"`
}

func (u *ClockUpdate) Apply(so *oracle.StateOracle) error {
	return so.SetClock(u.Round, u.Block, u.OriginBlock, u.PhaseBlocks)
}

func parseClockUpdate(data []byte) (*ClockUpdate, error) {
	var u ClockUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse ClockUpdate: %w", err)
	}
	if u.PhaseBlocks <= 0 {
		return nil, fmt.Errorf("parse ClockUpdate: phase_blocks must be positive")
	}
	return &u, nil
}

// RewardUpdate publishes a round's total reward allocation.
type RewardUpdate struct {
	Round       int64 `json:"round"`
	TotalReward int64 `json:"total_reward"`
}

func (u *RewardUpdate) Apply(so *oracle.StateOracle) error {
	so.SetReward(u.Round, u.TotalReward)
	return nil
}

func parseRewardUpdate(data []byte) (*RewardUpdate, error) {
	var u RewardUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse RewardUpdate: %w", err)
	}
	return &u, nil
}

// VotesUpdate publishes an account's governance votes and the global total.
type VotesUpdate struct {
	Account         string `json:"account"`
	ValidVotes      int64  `json:"valid_votes"`
	TotalValidVotes int64  `json:"total_valid_votes"`

	accountID uuid.UUID
}

func (u *VotesUpdate) Apply(so *oracle.StateOracle) error {
	so.SetVotes(u.accountID, u.ValidVotes, u.TotalValidVotes)
	return nil
}

func parseVotesUpdate(data []byte) (*VotesUpdate, error) {
	var u VotesUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse VotesUpdate: %w", err)
	}
	account, err := uuid.Parse(u.Account)
	if err != nil {
		return nil, fmt.Errorf("parse account: %w", err)
	}
	u.accountID = account
	return &u, nil
}

// PairUpdate publishes the AMM pair snapshot backing the join asset.
type PairUpdate struct {
	Factory     string `json:"factory"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Reserve0    int64  `json:"reserve0"`
	Reserve1    int64  `json:"reserve1"`
	TotalSupply int64  `json:"total_supply"`
}

func (u *PairUpdate) Apply(so *oracle.StateOracle) error {
	so.SetPair(u.Factory, u.Token0, u.Token1, u.Reserve0, u.Reserve1, u.TotalSupply)
	return nil
}

func parsePairUpdate(data []byte) (*PairUpdate, error) {
	var u PairUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse PairUpdate: %w", err)
	}
	return &u, nil
}
