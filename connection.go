package bus

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/protobuf/proto"
)

// Connection is the exclusively owned handle of a registered member. Close it
// (usually deferred) to release the name; Handle.Serve does that for you.
type Connection struct {
	name      Name
	handle    *Handle
	box       *mailbox
	closeOnce sync.Once
}

func newConnection(name Name, handle *Handle, box *mailbox) *Connection {
	return &Connection{
		name:   name,
		handle: handle,
		box:    box,
	}
}

func (c *Connection) Name() Name {
	return c.name
}

// Send delivers a typed payload to the member named to. It waits while the
// recipient's mailbox is full, until ctx is done.
func (c *Connection) Send(ctx context.Context, to string, payload proto.Message) error {
	if c.box.closed() {
		return ErrClosed
	}
	name, err := NewName(to)
	if err != nil {
		return err
	}
	msg, err := newTypedMessage(name, c.name, payload)
	if err != nil {
		return err
	}
	return c.handle.send(ctx, msg)
}

func (c *Connection) SendRaw(ctx context.Context, to string, data []byte) error {
	if c.box.closed() {
		return ErrClosed
	}
	name, err := NewName(to)
	if err != nil {
		return err
	}
	return c.handle.send(ctx, newRawMessage(name, c.name, data))
}

// RegisterEvent declares this member as the publisher of id. Repeated calls are no-ops.
func (c *Connection) RegisterEvent(id EventID) error {
	return c.handle.registerEvent(Event{Publisher: c.name, ID: id})
}

// Subscribe adds this member to the subscribers of the publisher's event. The
// publisher does not have to be registered yet.
func (c *Connection) Subscribe(publisher string, id EventID) error {
	event, err := NewEvent(publisher, id)
	if err != nil {
		return err
	}
	return c.handle.subscribe(c.name, event)
}

func (c *Connection) Unsubscribe(publisher string, id EventID) error {
	event, err := NewEvent(publisher, id)
	if err != nil {
		return err
	}
	c.handle.unsubscribe(c.name, event)
	return nil
}

// Broadcast sends payload, without a destination, to every current subscriber of id.
func (c *Connection) Broadcast(id EventID, payload proto.Message) error {
	p, err := Typed(payload)
	if err != nil {
		return err
	}
	return c.BroadcastPayload(id, p)
}

// BroadcastPayload is Broadcast for an already encoded payload, raw or typed.
func (c *Connection) BroadcastPayload(id EventID, payload Payload) error {
	if c.box.closed() {
		return ErrClosed
	}
	msg := Message{From: c.name, Event: id, Payload: payload}
	return c.handle.broadcast(Event{Publisher: c.name, ID: id}, msg)
}

// NextMessage returns the next message in enqueue order. It reports false at
// end-of-stream, after the Connection or the whole bus is closed, or when ctx
// is done. Check ctx.Err() to tell the two apart: it is nil only at
// end-of-stream.
func (c *Connection) NextMessage(ctx context.Context) (Message, bool) {
	return c.box.pop(ctx)
}

// Close unregisters the member. It is safe to call more than once and never
// fails: unregistration problems are logged.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		err := c.handle.unregister(c.name, c.box)
		switch {
		case err == nil:
		case errors.Is(err, ErrClosed):
			c.handle.logger.WithField("member", c.name).Debug("bus already closed")
		default:
			c.handle.logger.WithField("member", c.name).WithError(err).Error("Failed to unregister")
		}
		c.box.close()
	})
	return nil
}

func (c *Connection) String() string {
	return "Connection(" + string(c.name) + ")"
}
