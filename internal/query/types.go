package query

import "github.com/google/uuid"

// SettlementEntry represents a settled claim or sweep for API queries.
type SettlementEntry struct {
	SettlementID string     `json:"settlement_id"`
	Round        int64      `json:"round"`
	Account      *uuid.UUID `json:"account,omitempty"`
	Kind         string     `json:"kind"`
	MintAmount   int64      `json:"mint_amount"`
	BurnAmount   int64      `json:"burn_amount"`
	GovRatio     int64      `json:"gov_ratio"`
	Sequence     int64      `json:"sequence"`
	Timestamp    int64      `json:"timestamp"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// AccountSummaryResponse is the per-account running totals projection.
type AccountSummaryResponse struct {
	Account      uuid.UUID `json:"account"`
	JoinedAmount int64     `json:"joined_amount"`
	TotalMinted  int64     `json:"total_minted"`
	TotalBurned  int64     `json:"total_burned"`
	ClaimCount   int64     `json:"claim_count"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// EventHistoryEntry represents one event-log entry for API queries.
type EventHistoryEntry struct {
	Sequence     int64      `json:"sequence"`
	EventType    string     `json:"event_type"`
	Account      *uuid.UUID `json:"account,omitempty"`
	Round        *int64     `json:"round,omitempty"`
	Payload      []byte     `json:"payload"`
	Timestamp    int64      `json:"timestamp"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
