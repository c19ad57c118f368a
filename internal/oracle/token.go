package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSToken implements Token by publishing transfer/burn instructions to
// the external token service over JetStream. Publish waits for the stream
// ack, so a returned nil means the instruction is durably queued.
type NATSToken struct {
	js      jetstream.JetStream
	timeout time.Duration
}

type transferInstruction struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type burnInstruction struct {
	Amount int64 `json:"amount"`
}

func NewNATSToken(js jetstream.JetStream) *NATSToken {
	return &NATSToken{
		js:      js,
		timeout: 5 * time.Second,
	}
}

func (t *NATSToken) Transfer(to uuid.UUID, amount int64) error {
	data, err := json.Marshal(transferInstruction{To: to.String(), Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if _, err := t.js.Publish(ctx, "stake.token.transfer", data); err != nil {
		return fmt.Errorf("publish transfer: %w", err)
	}
	return nil
}

func (t *NATSToken) Burn(amount int64) error {
	data, err := json.Marshal(burnInstruction{Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal burn: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if _, err := t.js.Publish(ctx, "stake.token.burn", data); err != nil {
		return fmt.Errorf("publish burn: %w", err)
	}
	return nil
}

// EnsureTokenStream creates the token-instruction stream.
func EnsureTokenStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "STAKE_TOKEN",
		Subjects:  []string{"stake.token.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create token stream: %w", err)
	}
	return nil
}
