package transport

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

// Subscriber delivers probe payloads from a NATS subject. A queue group
// lets several ingestor instances share one subject; the store's unique
// correlation-id constraint keeps duplicate deliveries harmless.
type Subscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewSubscriber connects and subscribes. queue may be empty for a plain
// subscription.
func NewSubscriber(url, subject, queue string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	var sub *nats.Subscription
	if queue != "" {
		sub, err = conn.QueueSubscribeSync(subject, queue)
	} else {
		sub, err = conn.SubscribeSync(subject)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Subscriber{conn: conn, sub: sub}, nil
}

// Receive waits up to timeout for the next message body. No message
// within the timeout is not an error: it returns nil, nil.
func (s *Subscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := s.sub.NextMsg(timeout)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}
	return msg.Data, nil
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() {
	_ = s.sub.Unsubscribe()
	s.conn.Close()
}
