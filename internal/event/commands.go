package event

import "github.com/google/uuid"

// JoinCommand deposits LP tokens into the extension.
type JoinCommand struct {
	CommandID   uuid.UUID
	AccountID   uuid.UUID
	Amount      int64 // Fixed-point LP amount
	Sequence    int64
	TimestampUs int64
}

func (c *JoinCommand) IdempotencyKey() string { return c.CommandID.String() }
func (c *JoinCommand) EventType() EventType   { return EventTypeJoined }
func (c *JoinCommand) Account() *uuid.UUID    { return &c.AccountID }
func (c *JoinCommand) SourceSequence() int64  { return c.Sequence }

// ExitCommand withdraws the account's full LP position.
type ExitCommand struct {
	CommandID   uuid.UUID
	AccountID   uuid.UUID
	Sequence    int64
	TimestampUs int64
}

func (c *ExitCommand) IdempotencyKey() string { return c.CommandID.String() }
func (c *ExitCommand) EventType() EventType   { return EventTypeExited }
func (c *ExitCommand) Account() *uuid.UUID    { return &c.AccountID }
func (c *ExitCommand) SourceSequence() int64  { return c.Sequence }

// ClaimCommand claims the reward for a single finalized round.
// A duplicate claim for the round is a hard failure.
type ClaimCommand struct {
	CommandID   uuid.UUID
	AccountID   uuid.UUID
	Round       int64
	Sequence    int64
	TimestampUs int64
}

func (c *ClaimCommand) IdempotencyKey() string { return c.CommandID.String() }
func (c *ClaimCommand) EventType() EventType   { return EventTypeRewardClaimed }
func (c *ClaimCommand) Account() *uuid.UUID    { return &c.AccountID }
func (c *ClaimCommand) SourceSequence() int64  { return c.Sequence }

// ClaimBatchCommand claims rewards across many rounds, silently skipping
// rounds already claimed. Safe to submit repeatedly.
type ClaimBatchCommand struct {
	CommandID   uuid.UUID
	AccountID   uuid.UUID
	Rounds      []int64
	Sequence    int64
	TimestampUs int64
}

func (c *ClaimBatchCommand) IdempotencyKey() string { return c.CommandID.String() }
func (c *ClaimBatchCommand) EventType() EventType   { return EventTypeRewardClaimed }
func (c *ClaimBatchCommand) Account() *uuid.UUID    { return &c.AccountID }
func (c *ClaimBatchCommand) SourceSequence() int64  { return c.Sequence }

// SweepCommand triggers the once-per-round burn sweep.
type SweepCommand struct {
	CommandID   uuid.UUID
	Round       int64
	Sequence    int64
	TimestampUs int64
}

func (c *SweepCommand) IdempotencyKey() string { return c.CommandID.String() }
func (c *SweepCommand) EventType() EventType   { return EventTypeRoundSwept }
func (c *SweepCommand) Account() *uuid.UUID    { return nil }
func (c *SweepCommand) SourceSequence() int64  { return c.Sequence }
