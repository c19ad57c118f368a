package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds messages
// into the shell via channels. NATS JetStream is the primary high-throughput
// ingestion surface; each subject maps to one command or feed type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped message from NATS, ready for the shell
// to validate and convert before sending to the core.
type RawEvent struct {
	Subject   string
	EventType string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to command or feed types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// CommandSubjects returns the inbound command subject configuration.
func CommandSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "stake.join.>", EventType: "Join", ConsumerName: "stake-join", StreamName: "STAKE_COMMANDS"},
		{Subject: "stake.exit.>", EventType: "Exit", ConsumerName: "stake-exit", StreamName: "STAKE_COMMANDS"},
		{Subject: "stake.claim.single.>", EventType: "Claim", ConsumerName: "stake-claim", StreamName: "STAKE_COMMANDS"},
		{Subject: "stake.claim.batch.>", EventType: "ClaimBatch", ConsumerName: "stake-claim-batch", StreamName: "STAKE_COMMANDS"},
		{Subject: "stake.sweep.>", EventType: "Sweep", ConsumerName: "stake-sweep", StreamName: "STAKE_COMMANDS"},
	}
}

// OracleSubjects returns the oracle feed subject configuration.
func OracleSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "stake.oracle.clock", EventType: "ClockUpdate", ConsumerName: "stake-oracle-clock", StreamName: "STAKE_ORACLE"},
		{Subject: "stake.oracle.rewards", EventType: "RewardUpdate", ConsumerName: "stake-oracle-rewards", StreamName: "STAKE_ORACLE"},
		{Subject: "stake.oracle.votes", EventType: "VotesUpdate", ConsumerName: "stake-oracle-votes", StreamName: "STAKE_ORACLE"},
		{Subject: "stake.oracle.pair", EventType: "PairUpdate", ConsumerName: "stake-oracle-pair", StreamName: "STAKE_ORACLE"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		eventType := cfg.EventType
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				EventType: eventType,
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "STAKE_COMMANDS",
			Subjects:  []string{"stake.join.>", "stake.exit.>", "stake.claim.>", "stake.sweep.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "STAKE_ORACLE",
			Subjects:  []string{"stake.oracle.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
