package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brojonat/algotrace/service/extract"
	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions selects which events a subscription receives.
// An empty Kind subscribes to every kind.
type SubscribeOptions struct {
	Kind         extract.Kind
	Durable      bool
	ConsumerName string
}

// FilterSubject returns the subject filter for the options.
func (o SubscribeOptions) FilterSubject() string {
	if o.Kind == "" {
		return StreamSubjects
	}
	return SubjectForKind(o.Kind)
}

// Subscribe consumes record events until ctx is cancelled, calling handle for
// each one. Messages that fail to decode are logged and acknowledged.
func Subscribe(ctx context.Context, js jetstream.JetStream, opts SubscribeOptions, logger *slog.Logger, handle func(*RecordEvent) error) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: opts.FilterSubject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if opts.Durable {
		if opts.ConsumerName == "" {
			return fmt.Errorf("consumer name is required for a durable subscription")
		}
		cfg.Durable = opts.ConsumerName
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event RecordEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			logger.Warn("failed to decode record event", "subject", msg.Subject(), "error", err)
			_ = msg.Ack()
			return
		}
		if err := handle(&event); err != nil {
			logger.Error("record event handler failed", "tx_id", event.TxID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}
