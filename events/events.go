// Package events publishes Taskhub domain events to NATS.
//
// Publishing is fire-and-forget: failures are logged and never reach the
// caller, so a broker outage cannot fail an API request.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event subjects.
const (
	SubjectTaskCompleted        = "taskhub.task.completed"
	SubjectTaskAssigned         = "taskhub.task.assigned"
	SubjectProjectStatusChanged = "taskhub.project.status_changed"
	SubjectCommentCreated       = "taskhub.comment.created"
	SubjectUserRegistered       = "taskhub.user.registered"
)

// Event is the envelope written to the wire.
type Event struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, subject, actor string, data any)
}

// Nop discards every event. It is used when NATS is not configured.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, string, string, any) {}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSPublisher publishes events as JSON core NATS messages.
type NATSPublisher struct {
	conn   Conn
	logger *slog.Logger
	now    func() time.Time
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(conn Conn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, logger: logger, now: time.Now}
}

// Publish marshals and sends the event. The event ID doubles as the
// JetStream de-duplication header for streams bound to the subjects.
func (p *NATSPublisher) Publish(ctx context.Context, subject, actor string, data any) {
	if ctx.Err() != nil {
		p.logger.Debug("Context done, dropping event", "subject", subject)
		return
	}
	ev := Event{
		ID:         uuid.New().String(),
		Subject:    subject,
		Actor:      actor,
		OccurredAt: p.now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	msg := nats.NewMsg(subject)
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Warn("Failed to publish event", "subject", subject, "event_id", ev.ID, "error", err)
		return
	}
	p.logger.Debug("Published event", "subject", subject, "event_id", ev.ID)
}

// Connect dials NATS with reconnect handling that logs state changes.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nats.Connect(url,
		nats.Name("taskhub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
