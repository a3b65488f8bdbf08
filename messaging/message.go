package messaging

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// Message is the envelope sent verbatim over a transport.
type Message struct {
	ID       int64  `json:"id"`
	Kind     Kind   `json:"type"`
	Channel  string `json:"channel"`
	Data     any    `json:"data"`
	Resolved bool   `json:"resolved"`
}

// wireMessage is the JSON shape of Message. Resolved is a pointer so that
// requests leave it out while responses always carry it, false included.
type wireMessage struct {
	ID       int64  `json:"id"`
	Kind     Kind   `json:"type"`
	Channel  string `json:"channel"`
	Data     any    `json:"data"`
	Resolved *bool  `json:"resolved,omitempty"`
}

func (msg *Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{
		ID:      msg.ID,
		Kind:    msg.Kind,
		Channel: msg.Channel,
		Data:    msg.Data,
	}
	if msg.Kind == KindResponse {
		resolved := msg.Resolved
		wire.Resolved = &resolved
	}
	return json.Marshal(wire)
}

func (msg *Message) IsRequest() bool {
	return msg.Kind == KindRequest
}

func (msg *Message) IsResponse() bool {
	return msg.Kind == KindResponse
}

// IsEvent reports whether msg is a request that expects no response.
func (msg *Message) IsEvent() bool {
	return msg.Kind == KindRequest && msg.ID == 0
}

// Validate checks the structural invariants every decoded message must hold.
func (msg *Message) Validate() error {
	switch msg.Kind {
	case KindRequest, KindResponse:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msg.Kind)
	}
	if msg.Channel == "" {
		return fmt.Errorf("%w: missing channel", ErrInvalidMessage)
	}
	if msg.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrInvalidMessage, msg.ID)
	}
	if msg.Kind == KindResponse && msg.ID == 0 {
		return fmt.Errorf("%w: response without id", ErrInvalidMessage)
	}
	return nil
}

func (msg *Message) String() string {
	if msg.Kind == KindResponse {
		return fmt.Sprintf(
			"Message{ID: %d, Type: %s, Channel: %s, Resolved: %t}",
			msg.ID,
			msg.Kind,
			msg.Channel,
			msg.Resolved,
		)
	}
	return fmt.Sprintf("Message{ID: %d, Type: %s, Channel: %s}", msg.ID, msg.Kind, msg.Channel)
}
