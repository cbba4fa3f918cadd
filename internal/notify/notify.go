package notify

import (
	"context"
	"log/slog"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "inApp"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one client-facing notification. Data carries structured
// context the client app can render (trip id, coordinates, ETA).
type Message struct {
	To      string         `json:"to"`
	Channel Channel        `json:"channel"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Gateway delivers notifications to external sinks. Fire-and-forget from
// the engine's perspective: delivery failures are logged by the gateway
// implementation, never surfaced as engine-level errors.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// LogGateway writes notifications to the structured log. Used in local
// runs and as the terminal fallback sink.
type LogGateway struct {
	Logger *slog.Logger
}

func (g *LogGateway) Send(_ context.Context, msg Message) error {
	g.Logger.Info("notification",
		"to", msg.To,
		"channel", string(msg.Channel),
		"type", msg.Type,
		"message", msg.Message,
	)
	return nil
}

// Multi fans a notification out to several gateways, keeping the first
// error only for the caller's log line.
type Multi []Gateway

func (m Multi) Send(ctx context.Context, msg Message) error {
	var first error
	for _, g := range m {
		if err := g.Send(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
