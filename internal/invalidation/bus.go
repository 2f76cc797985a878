// Package invalidation broadcasts metadata cache invalidations between
// processes over NATS.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
	"github.com/nats-io/nats.go"
)

// Static errors for err113 compliance.
var (
	ErrURLRequired = errors.New("NATS URL is required")
	ErrClosed      = errors.New("invalidation bus is closed")
)

// Handler applies a scope received from another process.
type Handler func(scope quickbase.Scope)

// Bus publishes and receives invalidation scopes on one subject. Messages
// published by this connection are not delivered back to it.
type Bus struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
	logger  quickbase.Logger
}

// message is the wire form of a scope.
type message struct {
	App   string `json:"app,omitempty"`
	Table string `json:"table,omitempty"`
}

// Connect dials url. An empty subject uses the default subject.
func Connect(url, subject string, logger quickbase.Logger) (*Bus, error) {
	if url == "" {
		return nil, ErrURLRequired
	}

	if subject == "" {
		subject = constants.DefaultInvalidationSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("qbclient"),
		nats.NoEcho(),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &Bus{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the subject the bus uses.
func (b *Bus) Subject() string {
	return b.subject
}

// Publish sends scope to every other subscriber.
func (b *Bus) Publish(scope quickbase.Scope) error {
	if b.conn == nil || b.conn.IsClosed() {
		return ErrClosed
	}

	data, err := Encode(scope)
	if err != nil {
		return err
	}

	err = b.conn.Publish(b.subject, data)
	if err != nil {
		return fmt.Errorf("publishing invalidation: %w", err)
	}

	return nil
}

// Flush waits until the server has processed every published message.
func (b *Bus) Flush(timeout time.Duration) error {
	if b.conn == nil || b.conn.IsClosed() {
		return ErrClosed
	}

	err := b.conn.FlushTimeout(timeout)
	if err != nil {
		return fmt.Errorf("flushing NATS connection: %w", err)
	}

	return nil
}

// Subscribe delivers scopes published by other processes to handler.
func (b *Bus) Subscribe(handler Handler) error {
	if b.conn == nil || b.conn.IsClosed() {
		return ErrClosed
	}

	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		b.dispatch(msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.subject, err)
	}

	b.sub = sub

	return nil
}

// Close drains the subscription and closes the connection.
func (b *Bus) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}

	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}

	err := b.conn.Drain()
	if err != nil {
		b.conn.Close()

		return fmt.Errorf("draining NATS connection: %w", err)
	}

	return nil
}

func (b *Bus) dispatch(data []byte, handler Handler) {
	scope, err := Decode(data)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("Ignoring malformed invalidation message", map[string]interface{}{
				"subject": b.subject,
				"error":   err,
			})
		}

		return
	}

	handler(scope)
}

// Encode returns the wire form of scope.
func Encode(scope quickbase.Scope) ([]byte, error) {
	data, err := json.Marshal(message{App: scope.App, Table: scope.Table})
	if err != nil {
		return nil, fmt.Errorf("encoding invalidation: %w", err)
	}

	return data, nil
}

// Decode parses the wire form of a scope. An empty object selects
// everything.
func Decode(data []byte) (quickbase.Scope, error) {
	var msg message

	err := json.Unmarshal(data, &msg)
	if err != nil {
		return quickbase.Scope{}, fmt.Errorf("decoding invalidation: %w", err)
	}

	return quickbase.Scope{App: msg.App, Table: msg.Table}, nil
}
