package messaging

type MessageBuilder struct {
	message *Message
}

func NewMessage(id int64, kind Kind, channel string, data any) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			ID:      id,
			Kind:    kind,
			Channel: channel,
			Data:    data,
		},
	}
}

func NewRequest(id int64, channel string, data any) *MessageBuilder {
	return NewMessage(id, KindRequest, channel, data)
}

// NewEvent builds a request with the reserved id 0.
func NewEvent(channel string, data any) *MessageBuilder {
	return NewMessage(0, KindRequest, channel, data)
}

func NewResponse(id int64, channel string, resolved bool, data any) *MessageBuilder {
	return NewMessage(id, KindResponse, channel, data).Resolved(resolved)
}

func (mb *MessageBuilder) Resolved(resolved bool) *MessageBuilder {
	mb.message.Resolved = resolved
	return mb
}

func (mb *MessageBuilder) Data(data any) *MessageBuilder {
	mb.message.Data = data
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}
