// Package messaging defines the wire model exchanged between two hubs and the
// codecs that turn it into transport payloads.
//
// # Message Kinds
//
// A message is a closed tagged variant discriminated by its Kind:
//
//   - Request: a call on a channel. An id above zero expects a response with the
//     same id; id zero is a fire-and-forget event.
//   - Response: the reply to a request, echoing its id and channel. Resolved
//     distinguishes a handler result from a failure payload.
//
// # Message Construction
//
//	req := messaging.NewRequest(7, "sum", map[string]any{"a": 2, "b": 3}).Build()
//	evt := messaging.NewEvent("ping", nil).Build()
//	res := messaging.NewResponse(req.ID, req.Channel, true, 5).Build()
//
// # Codecs
//
// Transports carry opaque bytes. A Codec encodes a Message into those bytes and
// back. JSONCodec uses encoding/json; ProtoCodec packs the envelope into a
// structpb.Struct so payload data must be JSON-like. Both decode Data into the
// same generic values (map[string]any, []any, float64, string, bool, nil).
//
// Transfer hints never appear on the wire. They travel next to the encoded
// payload into the transport.
package messaging
