package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrEndOfStream is returned when the peer closed the pipe before a frame started.
	ErrEndOfStream = errors.New("end of stream")
	// ErrFrameTooLarge is returned for payloads that do not fit the uint32 length prefix.
	ErrFrameTooLarge = errors.New("frame exceeds uint32 length")
	// ErrInvalidOpcode is returned when encoding an opcode that is not five bytes wide.
	ErrInvalidOpcode = errors.New("opcode must be exactly 5 bytes")
)

// IsEndOfStream reports whether err means the peer went away, either cleanly
// between frames or in the middle of one.
func IsEndOfStream(err error) bool {
	return errors.Is(err, ErrEndOfStream) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// ReadFrame reads a single length-prefixed frame from r.
// Frame format: [4-byte native-order length][payload bytes...]
// Returns the payload without the length prefix.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [LengthPrefixSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := binary.NativeEndian.Uint32(header[:])
	if length == 0 {
		return []byte{}, nil
	}

	// The buffer grows with the bytes that actually arrive, so a bogus length
	// cannot force a 4 GiB allocation.
	var payload bytes.Buffer
	copied, err := io.CopyN(&payload, r, int64(length))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read frame payload (%d of %d bytes): %w", copied, length, err)
	}

	return payload.Bytes(), nil
}

// WriteFrame writes a length-prefixed frame to w as a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.NativeEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Decode splits a payload into opcode and argument. It never fails: payloads
// shorter than an opcode yield a short opcode and an empty argument, and
// unknown opcodes are passed through untouched.
func Decode(payload []byte) Message {
	if len(payload) <= OpcodeSize {
		return Message{Op: Opcode(payload)}
	}
	return Message{
		Op:  Opcode(payload[:OpcodeSize]),
		Arg: string(payload[OpcodeSize:]),
	}
}

// ReadMessage reads one frame from r and decodes it.
func ReadMessage(r io.Reader) (Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(payload), nil
}
