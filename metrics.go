package bus

// Metrics receives bus activity. Implementations must be safe for concurrent use.
type Metrics interface {
	MemberRegistered(name Name)
	MemberUnregistered(name Name)
	Delivered(kind PayloadKind)
	DeliveryFailed(reason string)
	Broadcast(fanout int)
}

const (
	FailureUnknownRecipient = "unknown_recipient"
	FailureMailboxClosed    = "mailbox_closed"
	FailureMailboxFull      = "mailbox_full"
	FailureCanceled         = "canceled"
)

type NoopMetrics struct{}

func (NoopMetrics) MemberRegistered(Name)   {}
func (NoopMetrics) MemberUnregistered(Name) {}
func (NoopMetrics) Delivered(PayloadKind)   {}
func (NoopMetrics) DeliveryFailed(string)   {}
func (NoopMetrics) Broadcast(int)           {}
