package bus

import (
	"context"
	"sync"
)

// mailbox is the delivery channel of one member. The data channel is never
// closed; done is closed instead so that a late push through a stale Addr fails
// rather than panics.
type mailbox struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{
		ch:   make(chan Message, capacity),
		done: make(chan struct{}),
	}
}

// push suspends until the message is accepted, the mailbox closes or ctx ends.
func (m *mailbox) push(ctx context.Context, msg Message) error {
	select {
	case <-m.done:
		return ErrDeliveryFailed
	default:
	}

	select {
	case m.ch <- msg:
		return nil
	case <-m.done:
		return ErrDeliveryFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryPush never suspends.
func (m *mailbox) tryPush(msg Message) error {
	select {
	case <-m.done:
		return ErrDeliveryFailed
	default:
	}

	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrDeliveryFailed
	}
}

// pop returns false once the mailbox is closed and drained, or when ctx ends.
func (m *mailbox) pop(ctx context.Context) (Message, bool) {
	select {
	case msg := <-m.ch:
		return msg, true
	case <-m.done:
		select {
		case msg := <-m.ch:
			return msg, true
		default:
			return Message{}, false
		}
	case <-ctx.Done():
		return Message{}, false
	}
}

func (m *mailbox) close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *mailbox) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
