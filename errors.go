package bus

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName      = errors.New("invalid name")
	ErrNameInUse        = errors.New("name in use")
	ErrUnknownMember    = errors.New("unknown member")
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrDeliveryFailed   = errors.New("delivery failed")

	// ErrClosed is returned by a closed Connection or a shut down Handle.
	ErrClosed = fmt.Errorf("%w: closed", ErrUnknownMember)
)
