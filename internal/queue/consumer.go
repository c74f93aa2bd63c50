package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/models"
)

// EventHandler processes one decoded identity event. Returning an error
// naks the message for redelivery.
type EventHandler func(ctx context.Context, ev *models.IdentityEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeIdentityEvents starts a durable consumer on the IDENTITY stream.
// workerCount goroutines run handler concurrently. deliverAll replays the
// retained history to a new consumer; otherwise only new events are seen.
func (c *Consumer) ConsumeIdentityEvents(ctx context.Context, consumerName string, handler EventHandler, workerCount int, deliverAll bool) error {
	if workerCount < 1 {
		workerCount = 1
	}

	stream, err := c.js.Stream(ctx, IdentityStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", IdentityStreamName, err)
	}

	policy := jetstream.DeliverNewPolicy
	if deliverAll {
		policy = jetstream.DeliverAllPolicy
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: IdentitySubjectBase + ".>",
		DeliverPolicy: policy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch identity events error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				handle(ctx, workerID, msg, handler)
			}
		}(i)
	}

	slog.Info("identity event consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

func handle(ctx context.Context, workerID int, msg jetstream.Msg, handler EventHandler) {
	ev, err := DecodeIdentityEvent(msg.Data())
	if err != nil {
		// a malformed payload will never succeed, drop it
		slog.Error("decode identity event", "worker", workerID, "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}

	if err := handler(ctx, ev); err != nil {
		slog.Error("process identity event error", "worker", workerID, "event_id", ev.ID, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func DecodeIdentityEvent(data []byte) (*models.IdentityEvent, error) {
	var ev models.IdentityEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal identity event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("unmarshal identity event: missing type")
	}
	return &ev, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
