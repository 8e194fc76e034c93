package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// PostEventHandler processes one decoded community event. Returning an error
// Naks the message so JetStream redelivers it.
type PostEventHandler func(ctx context.Context, evt PostEvent) error

// Subscriber consumes community events through a durable JetStream consumer,
// so notifications survive restarts and broker downtime.
type Subscriber struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	consume jetstream.ConsumeContext
	log     *zap.Logger
}

// NewSubscriber connects to NATS. The consumer itself is created in Subscribe.
func NewSubscriber(url string, log *zap.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: init jetstream: %w", err)
	}

	return &Subscriber{nc: nc, js: js, log: log}, nil
}

// Subscribe binds a durable consumer to the community stream and dispatches
// every event to handler. Malformed payloads are acked and dropped; handler
// errors are Naked for redelivery.
func (s *Subscriber) Subscribe(durable string, handler PostEventHandler) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: SubjectWildcard,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("events: ensure consumer %s: %w", durable, err)
	}

	consume, err := consumer.Consume(func(msg jetstream.Msg) {
		var evt PostEvent
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			// Poison message: redelivery cannot fix it, drop it.
			s.log.Warn("dropping malformed community event",
				zap.String("subject", msg.Subject()), zap.Error(err))
			_ = msg.Ack()
			return
		}

		hctx, hcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer hcancel()

		if err := handler(hctx, evt); err != nil {
			s.log.Warn("community event handler failed, requeueing",
				zap.String("subject", msg.Subject()), zap.Error(err))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("events: start consumer %s: %w", durable, err)
	}

	s.consume = consume
	return nil
}

// Close stops consuming and drains the connection.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	if s.consume != nil {
		s.consume.Stop()
	}
	if s.nc != nil {
		_ = s.nc.Drain()
	}
}
