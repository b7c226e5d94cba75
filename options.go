package bus

import (
	"github.com/sirupsen/logrus"
)

const DefaultMailboxSize = 64

type Option func(*Handle)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(h *Handle) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// WithMailboxSize sets the default capacity of member delivery channels.
func WithMailboxSize(size int) Option {
	return func(h *Handle) {
		if size >= 0 {
			h.mailboxSize = size
		}
	}
}

type memberOptions struct {
	capacity int
}

type MemberOption func(*memberOptions)

// WithCapacity overrides the mailbox capacity of one member. Zero makes every
// send wait for the receiver.
func WithCapacity(capacity int) MemberOption {
	return func(o *memberOptions) {
		if capacity >= 0 {
			o.capacity = capacity
		}
	}
}
