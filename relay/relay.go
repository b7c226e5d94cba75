package relay

import (
	"context"
	"fmt"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/sirupsen/logrus"
)

// Relay is the local member an imported event is delivered to. It re-broadcasts
// every frame body under its own name, so bus members subscribe to
// (relay name, event ID) exactly as they would to a local publisher, and the
// zmq publisher can export the relayed event again.
type Relay struct {
	conn   *bus.Connection
	event  bus.EventID
	logger logrus.FieldLogger
}

func New(handle *bus.Handle, name string, event bus.EventID, logger logrus.FieldLogger) (*Relay, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := handle.Register(name)
	if err != nil {
		return nil, fmt.Errorf("bus.Handle.Register error: %w", err)
	}
	err = conn.RegisterEvent(event)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bus.Connection.RegisterEvent error: %w", err)
	}

	return &Relay{
		conn:   conn,
		event:  event,
		logger: logger.WithField("member", conn.Name()).WithField("event", event),
	}, nil
}

func (r *Relay) Name() bus.Name {
	return r.conn.Name()
}

// Run re-broadcasts until ctx is done or the relay is closed. Raw messages are
// frame bodies and are decoded first; typed ones are passed on unchanged.
func (r *Relay) Run(ctx context.Context) {
	for {
		msg, ok := r.conn.NextMessage(ctx)
		if !ok {
			return
		}

		payload := msg.Payload
		if payload.Kind == bus.RawPayload {
			var err error
			payload, err = bus.UnmarshalPayload(payload.Data)
			if err != nil {
				r.logger.WithError(err).Warn("dropping undecodable frame")
				continue
			}
		}

		err := r.conn.BroadcastPayload(r.event, payload)
		if err != nil {
			r.logger.WithError(err).Warn("relay broadcast failed")
		}
	}
}

func (r *Relay) Close() error {
	return r.conn.Close()
}
