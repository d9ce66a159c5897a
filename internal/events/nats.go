package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftlink/craftlink/internal/domain"
	"github.com/nats-io/nats.go"
)

// NATSPublisher forwards events to "<subject>.<event type>"
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to the NATS server at url
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("craftlink"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Publish implements Sink. Publishing is buffered by the NATS client.
func (p *NATSPublisher) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Error marshaling event", "error", err)
		return
	}
	if err := p.nc.Publish(p.subject+"."+event.Type, data); err != nil {
		slog.Warn("NATS publish failed", "event", event.Type, "error", err)
	}
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
