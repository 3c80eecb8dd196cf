package replication

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSTransport publishes replication events to a NATS subject per
// namespace. Replica nodes subscribe to the subjects they own and apply the
// events locally. Publishes are fire-and-forget; Sync flushes the client
// buffer.
type NATSTransport struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSTransport connects to the given NATS URL. The subject prefix
// namespaces this cluster's traffic, e.g. "stratacache.repl".
func NewNATSTransport(url, subjectPrefix string) (*NATSTransport, error) {
	if subjectPrefix == "" {
		subjectPrefix = "stratacache.repl"
	}
	conn, err := nats.Connect(url,
		nats.Name("stratacache-replication"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("replication: failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSTransport{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// Replicate publishes the event to "<prefix>.<namespace>".
func (t *NATSTransport) Replicate(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("replication: failed to marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", t.subjectPrefix, event.Namespace)
	if err := t.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("replication: publish to %s failed: %w", subject, err)
	}
	return nil
}

// Sync flushes pending publishes to the server.
func (t *NATSTransport) Sync(ctx context.Context) error {
	if err := t.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("replication: flush failed: %w", err)
	}
	return nil
}

// Subscribe registers a handler for inbound replication events on a
// namespace subject. Used by replica nodes to apply remote writes.
func (t *NATSTransport) Subscribe(namespace string, handler func(Event)) (*nats.Subscription, error) {
	subject := fmt.Sprintf("%s.%s", t.subjectPrefix, namespace)
	return t.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(event)
	})
}

// Close drains and closes the connection.
func (t *NATSTransport) Close() error {
	if t.conn == nil || t.conn.IsClosed() {
		return nil
	}
	return t.conn.Drain()
}
