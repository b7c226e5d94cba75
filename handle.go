package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Handle is the bus registry. It owns the member directory and the
// subscription index; Connections and Addrs are views over its entries.
type Handle struct {
	mu            sync.RWMutex
	members       map[Name]*mailbox
	events        map[Name]map[EventID]struct{}
	subscriptions map[Event]map[Name]struct{}
	closed        bool

	logger      logrus.FieldLogger
	metrics     Metrics
	mailboxSize int
}

func New(opts ...Option) *Handle {
	h := &Handle{
		members:       make(map[Name]*mailbox),
		events:        make(map[Name]map[EventID]struct{}),
		subscriptions: make(map[Event]map[Name]struct{}),
		logger:        logrus.StandardLogger(),
		metrics:       NoopMetrics{},
		mailboxSize:   DefaultMailboxSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register claims name and returns the Connection that owns it. The name stays
// taken until the Connection is closed.
func (h *Handle) Register(name string, opts ...MemberOption) (*Connection, error) {
	n, err := NewName(name)
	if err != nil {
		return nil, err
	}
	return h.register(n, opts)
}

// RegisterAnonymous registers a member named "<prefix>-<uuid>".
func (h *Handle) RegisterAnonymous(prefix string, opts ...MemberOption) (*Connection, error) {
	name := uuid.NewString()
	if prefix != "" {
		name = prefix + "-" + name
	}
	return h.Register(name, opts...)
}

// Serve registers name, runs fn with the new Connection and releases the name
// on every exit path of fn, panics included.
func (h *Handle) Serve(
	ctx context.Context,
	name string,
	fn func(ctx context.Context, conn *Connection) error,
	opts ...MemberOption,
) error {
	conn, err := h.Register(name, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// Addr resolves name once and returns a send-only handle bound to its current
// delivery channel.
func (h *Handle) Addr(name string) (*Addr, error) {
	n, err := NewName(name)
	if err != nil {
		return nil, err
	}
	box, ok := h.lookup(n)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecipient, n)
	}
	return newAddr(n, box, h), nil
}

// Close shuts the bus down. Every member's NextMessage loop observes
// end-of-stream and later registrations fail with ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	members := h.members
	h.members = make(map[Name]*mailbox)
	h.events = make(map[Name]map[EventID]struct{})
	h.subscriptions = make(map[Event]map[Name]struct{})
	h.mu.Unlock()

	for name, box := range members {
		box.close()
		h.metrics.MemberUnregistered(name)
	}

	h.logger.WithField("members", len(members)).Info("bus closed")

	return nil
}

func (h *Handle) Members() []Name {
	h.mu.RLock()
	names := make([]Name, 0, len(h.members))
	for name := range h.members {
		names = append(names, name)
	}
	h.mu.RUnlock()

	sortNames(names)
	return names
}

func (h *Handle) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.members)
}

func (h *Handle) Subscribers(event Event) []Name {
	h.mu.RLock()
	names := make([]Name, 0, len(h.subscriptions[event]))
	for name := range h.subscriptions[event] {
		names = append(names, name)
	}
	h.mu.RUnlock()

	sortNames(names)
	return names
}

// Events lists the events publisher has declared with RegisterEvent.
func (h *Handle) Events(publisher Name) []EventID {
	h.mu.RLock()
	ids := make([]EventID, 0, len(h.events[publisher]))
	for id := range h.events[publisher] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

func (h *Handle) register(name Name, opts []MemberOption) (*Connection, error) {
	o := memberOptions{capacity: h.mailboxSize}
	for _, opt := range opts {
		opt(&o)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := h.members[name]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNameInUse, name)
	}
	box := newMailbox(o.capacity)
	h.members[name] = box
	h.mu.Unlock()

	h.metrics.MemberRegistered(name)
	h.logger.WithField("member", name).Debug("member registered")

	return newConnection(name, h, box), nil
}

// unregister removes name only while it is still owned by box, so a late
// Close of an old Connection cannot evict a newer owner of the same name.
func (h *Handle) unregister(name Name, box *mailbox) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if current, ok := h.members[name]; !ok || current != box {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMember, name)
	}
	delete(h.members, name)
	delete(h.events, name)
	for event, subscribers := range h.subscriptions {
		if _, ok := subscribers[name]; !ok {
			continue
		}
		delete(subscribers, name)
		if len(subscribers) == 0 {
			delete(h.subscriptions, event)
		}
	}
	h.mu.Unlock()

	box.close()

	h.metrics.MemberUnregistered(name)
	h.logger.WithField("member", name).Debug("member unregistered")

	return nil
}

func (h *Handle) lookup(name Name) (*mailbox, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	box, ok := h.members[name]
	return box, ok
}

// send suspends on the recipient's mailbox outside of the registry lock.
func (h *Handle) send(ctx context.Context, msg Message) error {
	box, ok := h.lookup(msg.To)
	if !ok {
		h.metrics.DeliveryFailed(FailureUnknownRecipient)
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, msg.To)
	}

	err := box.push(ctx, msg)
	switch {
	case err == nil:
		h.metrics.Delivered(msg.Payload.Kind)
		return nil
	case errors.Is(err, ErrDeliveryFailed):
		h.metrics.DeliveryFailed(FailureMailboxClosed)
		return fmt.Errorf("%w: %s", err, msg.To)
	default:
		h.metrics.DeliveryFailed(FailureCanceled)
		return err
	}
}

func (h *Handle) registerEvent(event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[event.Publisher]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, event.Publisher)
	}
	ids, ok := h.events[event.Publisher]
	if !ok {
		ids = make(map[EventID]struct{})
		h.events[event.Publisher] = ids
	}
	ids[event.ID] = struct{}{}

	return nil
}

// subscribe does not require the publisher to be registered yet.
func (h *Handle) subscribe(subscriber Name, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[subscriber]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, subscriber)
	}
	subscribers, ok := h.subscriptions[event]
	if !ok {
		subscribers = make(map[Name]struct{})
		h.subscriptions[event] = subscribers
	}
	subscribers[subscriber] = struct{}{}

	return nil
}

func (h *Handle) unsubscribe(subscriber Name, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.subscriptions[event]
	if !ok {
		return
	}
	delete(subscribers, subscriber)
	if len(subscribers) == 0 {
		delete(h.subscriptions, event)
	}
}

type recipient struct {
	name Name
	box  *mailbox
}

// broadcast delivers msg to a snapshot of the event's subscribers. Pushes never
// suspend, so a full mailbox only fails its own delivery. An error is returned
// only when there were subscribers and none of them could be reached.
func (h *Handle) broadcast(event Event, msg Message) error {
	h.mu.RLock()
	recipients := make([]recipient, 0, len(h.subscriptions[event]))
	for name := range h.subscriptions[event] {
		recipients = append(recipients, recipient{name: name, box: h.members[name]})
	}
	h.mu.RUnlock()

	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].name < recipients[j].name
	})

	var (
		errs      error
		delivered int
	)
	for _, r := range recipients {
		err := h.deliver(r, msg)
		if err != nil {
			h.logger.WithFields(logrus.Fields{
				"event": event,
				"to":    r.name,
			}).WithError(err).Warn("broadcast delivery failed")
			errs = multierr.Append(errs, err)
			continue
		}
		delivered++
	}

	h.metrics.Broadcast(delivered)

	if len(recipients) > 0 && delivered == 0 {
		return fmt.Errorf("broadcast %s: %w", event, errs)
	}
	return nil
}

func (h *Handle) deliver(r recipient, msg Message) error {
	if r.box == nil {
		h.metrics.DeliveryFailed(FailureUnknownRecipient)
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, r.name)
	}
	if err := r.box.tryPush(msg); err != nil {
		h.metrics.DeliveryFailed(failureReason(r.box))
		return fmt.Errorf("%w: %s", err, r.name)
	}
	h.metrics.Delivered(msg.Payload.Kind)
	return nil
}

func failureReason(box *mailbox) string {
	if box.closed() {
		return FailureMailboxClosed
	}
	return FailureMailboxFull
}

func sortNames(names []Name) {
	sort.Slice(names, func(i, j int) bool {
		return names[i] < names[j]
	})
}
