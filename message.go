package bus

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type PayloadKind uint8

const (
	RawPayload PayloadKind = iota + 1
	TypedPayload
)

func (k PayloadKind) String() string {
	switch k {
	case RawPayload:
		return "raw"
	case TypedPayload:
		return "typed"
	default:
		return "unknown"
	}
}

// Payload is either raw bytes or a protobuf value encoded at construction time.
// TypeURL is the decode key of a typed payload and is empty for raw ones.
// Data may be shared between the copies of a broadcast and must not be mutated.
type Payload struct {
	Kind    PayloadKind
	TypeURL string
	Data    []byte
}

func Raw(data []byte) Payload {
	return Payload{Kind: RawPayload, Data: data}
}

func Typed(m proto.Message) (Payload, error) {
	a, err := anypb.New(m)
	if err != nil {
		return Payload{}, fmt.Errorf("anypb.New error: %w", err)
	}
	return Payload{Kind: TypedPayload, TypeURL: a.GetTypeUrl(), Data: a.GetValue()}, nil
}

// Decode unmarshals a typed payload into dst. The type of dst must match TypeURL.
func (p Payload) Decode(dst proto.Message) error {
	if p.Kind != TypedPayload {
		return fmt.Errorf("cannot decode %s payload into %T", p.Kind, dst)
	}
	a := &anypb.Any{TypeUrl: p.TypeURL, Value: p.Data}
	if err := a.UnmarshalTo(dst); err != nil {
		return fmt.Errorf("anypb.Any.UnmarshalTo error: %w", err)
	}
	return nil
}

// DecodeNew resolves the payload type in the global protobuf registry.
func (p Payload) DecodeNew() (proto.Message, error) {
	if p.Kind != TypedPayload {
		return nil, fmt.Errorf("cannot decode %s payload", p.Kind)
	}
	a := &anypb.Any{TypeUrl: p.TypeURL, Value: p.Data}
	m, err := a.UnmarshalNew()
	if err != nil {
		return nil, fmt.Errorf("anypb.Any.UnmarshalNew error: %w", err)
	}
	return m, nil
}

// Any wraps the payload for a transport. Raw bytes travel as a BytesValue.
func (p Payload) Any() (*anypb.Any, error) {
	switch p.Kind {
	case TypedPayload:
		return &anypb.Any{TypeUrl: p.TypeURL, Value: p.Data}, nil
	case RawPayload:
		a, err := anypb.New(wrapperspb.Bytes(p.Data))
		if err != nil {
			return nil, fmt.Errorf("anypb.New error: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %d", p.Kind)
	}
}

// PayloadFromAny reverses Any: a BytesValue becomes a raw payload again.
func PayloadFromAny(a *anypb.Any) (Payload, error) {
	if a.MessageIs((*wrapperspb.BytesValue)(nil)) {
		b := new(wrapperspb.BytesValue)
		if err := a.UnmarshalTo(b); err != nil {
			return Payload{}, fmt.Errorf("anypb.Any.UnmarshalTo error: %w", err)
		}
		return Raw(b.GetValue()), nil
	}
	return Payload{Kind: TypedPayload, TypeURL: a.GetTypeUrl(), Data: a.GetValue()}, nil
}

// MarshalPayload encodes p as a protobuf Any, the frame body used by the
// network bridges.
func MarshalPayload(p Payload) ([]byte, error) {
	a, err := p.Any()
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("proto.Marshal error: %w", err)
	}
	return data, nil
}

func UnmarshalPayload(data []byte) (Payload, error) {
	a := new(anypb.Any)
	if err := proto.Unmarshal(data, a); err != nil {
		return Payload{}, fmt.Errorf("proto.Unmarshal error: %w", err)
	}
	return PayloadFromAny(a)
}

// Message is the bus envelope. An empty To marks a broadcast payload and Event
// then names the publisher's event it was broadcast under. From is empty for
// messages pushed through an Addr.
type Message struct {
	To      Name
	From    Name
	Event   EventID
	Payload Payload
}

func (m Message) IsBroadcast() bool {
	return m.To == ""
}

func newTypedMessage(to, from Name, payload proto.Message) (Message, error) {
	p, err := Typed(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, From: from, Payload: p}, nil
}

func newRawMessage(to, from Name, data []byte) Message {
	return Message{To: to, From: from, Payload: Raw(data)}
}
