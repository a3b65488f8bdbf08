package messaging

import "errors"

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownCodec   = errors.New("unknown codec")
	ErrEncode         = errors.New("encode failed")
)
