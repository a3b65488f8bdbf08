package messaging

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	CodecJSON  = "json"
	CodecProto = "proto"
)

// Codec converts messages to and from transport payloads.
type Codec interface {
	Name() string
	Encode(msg *Message) ([]byte, error)
	Decode(payload []byte) (*Message, error)
}

// CodecByName resolves a codec from its configuration name. An empty name
// selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProto:
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return payload, nil
}

func (JSONCodec) Decode(payload []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ProtoCodec encodes the envelope as a protobuf structpb.Struct. Ids travel as
// protobuf numbers, so they are exact up to 2^53.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return CodecProto }

func (ProtoCodec) Encode(msg *Message) ([]byte, error) {
	data, err := toValue(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrEncode, err)
	}

	envelope := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"id":      structpb.NewNumberValue(float64(msg.ID)),
			"type":    structpb.NewStringValue(string(msg.Kind)),
			"channel": structpb.NewStringValue(msg.Channel),
			"data":    data,
		},
	}
	if msg.Kind == KindResponse {
		envelope.Fields["resolved"] = structpb.NewBoolValue(msg.Resolved)
	}

	payload, err := proto.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return payload, nil
}

func (ProtoCodec) Decode(payload []byte) (*Message, error) {
	var envelope structpb.Struct
	if err := proto.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	fields := envelope.GetFields()

	id := fields["id"].GetNumberValue()
	if id != math.Trunc(id) || math.IsInf(id, 0) {
		return nil, fmt.Errorf("%w: non-integral id %v", ErrInvalidMessage, id)
	}

	msg := &Message{
		ID:       int64(id),
		Kind:     Kind(fields["type"].GetStringValue()),
		Channel:  fields["channel"].GetStringValue(),
		Data:     fields["data"].AsInterface(),
		Resolved: fields["resolved"].GetBoolValue(),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// toValue converts arbitrary data into a structpb value. Types structpb does
// not know natively (structs, typed maps and slices) are normalised through
// their JSON form first.
func toValue(data any) (*structpb.Value, error) {
	if value, err := structpb.NewValue(data); err == nil {
		return value, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
