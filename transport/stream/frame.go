package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const DefaultMaxFrameBytes uint64 = 8 * 1024 * 1024

var (
	ErrFrameTooLarge = errors.New("stream: frame too large")
	ErrShortFrame    = errors.New("stream: short frame")
)

// WriteFrame writes payload prefixed with its length as an unsigned varint,
// in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(payload))
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame. io.EOF is returned only on a
// clean boundary between frames.
func ReadFrame(r *bufio.Reader, maxBytes uint64) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	if size > maxBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxBytes)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return payload, nil
}
