// Package notification delivers operator alerts and settlement notices.
// Delivery is fire-and-forget from the domain's point of view: a failed send
// is logged and never rolls back the state change that triggered it.
package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Severity ranks a notification for routing on the receiving side
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message is one notification. Body is the serialized event envelope.
type Message struct {
	ID         string
	Kind       string
	Severity   Severity
	Subject    string
	TenantID   string
	OccurredAt time.Time
	Body       []byte
}

// Notifier sends messages to whatever channel the deployment uses
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	Close() error
}

// LogNotifier writes messages to the structured log. It is the default
// driver and the fallback when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notification")}
}

// Notify logs the message at a level matching its severity
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	fields := []zap.Field{
		zap.String("notification_id", msg.ID),
		zap.String("kind", msg.Kind),
		zap.String("tenant_id", msg.TenantID),
		zap.Time("occurred_at", msg.OccurredAt),
		zap.ByteString("body", msg.Body),
	}
	switch msg.Severity {
	case SeverityCritical:
		n.logger.Error(msg.Subject, fields...)
	case SeverityWarning:
		n.logger.Warn(msg.Subject, fields...)
	default:
		n.logger.Info(msg.Subject, fields...)
	}
	return nil
}

// Close is a no-op
func (n *LogNotifier) Close() error { return nil }

var _ Notifier = (*LogNotifier)(nil)
