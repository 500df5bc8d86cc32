package telemetry

import (
	"context"
	"log/slog"

	"github.com/nugget/smartpark/internal/config"
)

// Outcome is the result of a single Publish call.
type Outcome int

// Publish outcomes.
const (
	// Sent means the payload was handed to the transport.
	Sent Outcome = iota
	// DroppedNotConnected means the session was not active and the
	// event was discarded.
	DroppedNotConnected
	// Failed means the session was active but the transport rejected
	// the publish. The event is not retried.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case DroppedNotConnected:
		return "dropped_not_connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is the part of the broker session the publisher needs.
type Session interface {
	// Active reports whether the session is established and the
	// transport currently connected.
	Active() bool
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Publisher sends events on the status topic.
type Publisher struct {
	session Session
	topic   string
	logger  *slog.Logger
}

// NewPublisher returns a Publisher writing to topic through session.
func NewPublisher(session Session, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{session: session, topic: topic, logger: logger}
}

// Publish encodes ev and transmits it if the session is active. There is
// no queue and no retry: an event that cannot be sent now is dropped.
func (p *Publisher) Publish(ctx context.Context, ev Event) Outcome {
	payload := Encode(ev)

	if !p.session.Active() {
		p.logger.Debug("telemetry dropped, session not active",
			"slot", ev.SlotID, "phase", ev.Phase)
		return DroppedNotConnected
	}

	if err := p.session.Publish(ctx, p.topic, payload); err != nil {
		p.logger.Warn("telemetry publish failed",
			"slot", ev.SlotID, "phase", ev.Phase, "topic", p.topic, "error", err)
		return Failed
	}

	p.logger.Info("telemetry published",
		"slot", ev.SlotID, "phase", ev.Phase, "occupied", ev.Occupied, "topic", p.topic)
	p.logger.Log(ctx, config.LevelTrace, "telemetry payload",
		"payload", string(payload))
	return Sent
}
