package bus

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	TopicAndPayloadDelimiter byte = 0
	TopicEventDelimiter           = ":"

	MaxNameLength = 255
)

type (
	// Name identifies a bus member. At most one live registration exists per Name.
	Name              string
	EventID           string
	PublisherEndpoint string
)

// NewName validates s and converts it into a Name. The topic delimiter is
// reserved so that a topic splits back into exactly one publisher and ID.
func NewName(s string) (Name, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(s) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidName, s)
		}
	}
	if strings.Contains(s, TopicEventDelimiter) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidName, s, TopicEventDelimiter)
	}
	return Name(s), nil
}

func (n Name) String() string {
	return string(n)
}

type scalar interface {
	~string | ~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// EventIDOf converts a string or integer into an EventID.
func EventIDOf[T scalar](v T) EventID {
	if s, ok := any(v).(string); ok {
		return EventID(s)
	}
	return EventID(fmt.Sprint(v))
}

func (id EventID) String() string {
	return string(id)
}

// Event is a topic scoped to its publisher: the same ID under two publishers
// names two different events.
type Event struct {
	Publisher Name
	ID        EventID
}

func NewEvent(publisher string, id EventID) (Event, error) {
	name, err := NewName(publisher)
	if err != nil {
		return Event{}, err
	}
	return Event{Publisher: name, ID: id}, nil
}

// Validate checks that e can travel over a bridge: a valid publisher name and
// an ID free of the frame delimiter.
func (e Event) Validate() error {
	if _, err := NewName(string(e.Publisher)); err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("%w: empty event id", ErrInvalidName)
	}
	if strings.IndexByte(string(e.ID), TopicAndPayloadDelimiter) >= 0 {
		return fmt.Errorf("%w: event id %q contains the frame delimiter", ErrInvalidName, e.ID)
	}
	return nil
}

func (e Event) String() string {
	return e.Topic()
}

// Topic is the wire topic used by the network bridges.
func (e Event) Topic() string {
	return string(e.Publisher) + TopicEventDelimiter + string(e.ID)
}

type PublishersRegistry interface {
	Register(event Event, host string, port int) (unregister func() error, err error)
	Watch(event Event, handler func([]PublisherEndpoint)) (stop func() error, err error)
}
