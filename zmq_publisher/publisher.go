package zmq_publisher

import (
	"bytes"
	"context"
	"fmt"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"
)

// Publisher exports bus events to a ZeroMQ PUB socket. It joins the bus as an
// anonymous member subscribed to every exported event and advertises each
// event in the publishers registry.
type Publisher struct {
	conn       *bus.Connection
	logger     logrus.FieldLogger
	unregister []func() error
	zmqContext *zmq4.Context
	zmqSocket  *zmq4.Socket
}

func New(
	handle *bus.Handle,
	host string,
	port int,
	events []bus.Event,
	publishersRegistry bus.PublishersRegistry,
	logger logrus.FieldLogger,
) (*Publisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	for _, event := range events {
		if err := event.Validate(); err != nil {
			return nil, err
		}
	}

	zmqContext, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq4.NewContext error: %w", err)
	}
	zmqSocket, err := zmqContext.NewSocket(zmq4.PUB)
	if err != nil {
		_ = zmqContext.Term()
		return nil, fmt.Errorf("zmq4.Context.NewSocket error: %w", err)
	}

	p := &Publisher{
		logger:     logger,
		zmqContext: zmqContext,
		zmqSocket:  zmqSocket,
	}

	err = zmqSocket.SetLinger(0)
	if err != nil {
		_ = p.Stop()
		return nil, fmt.Errorf("zmq4.Socket.SetLinger error: %w", err)
	}
	err = zmqSocket.Bind(fmt.Sprintf("tcp://*:%d", port))
	if err != nil {
		_ = p.Stop()
		return nil, fmt.Errorf("zmq4.Socket.Bind error: %w", err)
	}

	p.conn, err = handle.RegisterAnonymous("zmq-publisher")
	if err != nil {
		_ = p.Stop()
		return nil, fmt.Errorf("bus.Handle.RegisterAnonymous error: %w", err)
	}
	p.logger = logger.WithField("member", p.conn.Name())

	for _, event := range events {
		err = p.conn.Subscribe(string(event.Publisher), event.ID)
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("bus.Connection.Subscribe error: %w", err)
		}

		unregister, err := publishersRegistry.Register(event, host, port)
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("PublishersRegistry.Register error: %w", err)
		}
		p.unregister = append(p.unregister, unregister)
	}

	return p, nil
}

// Run forwards broadcasts until ctx is done or the bus closes. Stop must not be
// called before Run has returned: the socket belongs to this goroutine.
func (p *Publisher) Run(ctx context.Context) {
	for {
		msg, ok := p.conn.NextMessage(ctx)
		if !ok {
			return
		}
		if !msg.IsBroadcast() {
			p.logger.WithField("from", msg.From).Debug("dropping point-to-point message")
			continue
		}

		event := bus.Event{Publisher: msg.From, ID: msg.Event}
		err := p.Publish(event, msg.Payload)
		if err != nil {
			p.logger.WithField("event", event).WithError(err).Warn("publish failed")
		}
	}
}

// Publish writes one frame: topic, delimiter, protobuf Any of the payload.
func (p *Publisher) Publish(event bus.Event, payload bus.Payload) error {
	buf := bytes.NewBufferString(event.Topic())
	buf.WriteByte(bus.TopicAndPayloadDelimiter)

	msg, err := bus.MarshalPayload(payload)
	if err != nil {
		return err
	}

	_, err = buf.Write(msg)
	if err != nil {
		return fmt.Errorf("bytes.Buffer.Write error: %w", err)
	}

	_, err = p.zmqSocket.SendBytes(buf.Bytes(), 0)
	if err != nil {
		return fmt.Errorf("zmq4.Socket.SendBytes error: %w", err)
	}

	return nil
}

func (p *Publisher) Name() bus.Name {
	if p.conn == nil {
		return ""
	}
	return p.conn.Name()
}

func (p *Publisher) Stop() error {
	for _, unregister := range p.unregister {
		err := unregister()
		if err != nil {
			return fmt.Errorf("unregister error: %w", err)
		}
	}
	p.unregister = nil

	if p.conn != nil {
		_ = p.conn.Close()
	}

	err := p.zmqSocket.Close()
	if err != nil {
		return fmt.Errorf("zmq.Socket.Close error: %w", err)
	}

	err = p.zmqContext.Term()
	if err != nil {
		return fmt.Errorf("zmq.Context.Term error: %w", err)
	}

	return nil
}
