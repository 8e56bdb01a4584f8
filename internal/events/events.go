// Package events publishes domain events to NATS.
//
// Events are notifications: a failed publish is logged and never fails the
// operation that produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event types.
const (
	DocumentsIngested        = "documents.ingested"
	DocumentsDeleted         = "documents.deleted"
	TeamInvitationCreated    = "team.invitation.created"
	TeamInvitationAccepted   = "team.invitation.accepted"
	ConversationMessageAdded = "conversation.message.added"
)

// Event is the JSON envelope published on <prefix>.<type>.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     string         `json:"user_id,omitempty"`
	TeamID     string         `json:"team_id,omitempty"`
	ProjectID  string         `json:"project_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
func (Noop) Close() error                   { return nil }

// NATSPublisher publishes core NATS messages.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
	owned  bool
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("worken"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	p := NewNATSPublisher(nc, prefix, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisher publishes on an existing connection.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "worken"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject events of type t are published on.
func (p *NATSPublisher) Subject(t string) string { return p.prefix + "." + t }

func (p *NATSPublisher) Publish(_ context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("marshal event", zap.String("type", e.Type), zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.Subject(e.Type), data); err != nil {
		p.logger.Warn("publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

// Close drains the connection when the publisher created it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}

// New returns a NATS publisher for url, or Noop when url is empty.
func New(url, prefix string, logger *zap.Logger) (Publisher, error) {
	if url == "" {
		return Noop{}, nil
	}
	return Connect(url, prefix, logger)
}
