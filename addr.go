package bus

import (
	"fmt"
)

// Addr is a send-only handle to one member. It keeps the delivery channel it
// was resolved with, so it goes stale once that member unregisters; sends
// through a stale Addr fail with ErrDeliveryFailed and the caller may resolve
// the name again.
type Addr struct {
	name   Name
	box    *mailbox
	handle *Handle
}

func newAddr(name Name, box *mailbox, handle *Handle) *Addr {
	return &Addr{
		name:   name,
		box:    box,
		handle: handle,
	}
}

func (a *Addr) Name() Name {
	return a.name
}

// Send pushes raw data without waiting. A full or closed mailbox fails the send.
func (a *Addr) Send(data []byte) error {
	err := a.box.tryPush(newRawMessage(a.name, "", data))
	if err != nil {
		a.handle.metrics.DeliveryFailed(failureReason(a.box))
		return fmt.Errorf("%w: %s", err, a.name)
	}
	a.handle.metrics.Delivered(RawPayload)
	return nil
}

func (a *Addr) String() string {
	return "Addr(" + string(a.name) + ")"
}
