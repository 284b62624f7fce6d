package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode identifies the frame type.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// Close status codes.
const (
	CloseNormalClosure   uint16 = 1000
	CloseGoingAway       uint16 = 1001
	CloseProtocolError   uint16 = 1002
	CloseMessageTooBig   uint16 = 1009
	CloseNoStatusPresent uint16 = 1005
)

// maxControlPayload is the largest payload a control frame may carry.
const maxControlPayload = 125

var (
	// ErrIncomplete means more bytes are needed before a frame can be decoded.
	ErrIncomplete = errors.New("incomplete frame")

	ErrProtocol        = errors.New("websocket protocol error")
	ErrFragmented      = fmt.Errorf("%w: fragmented messages are not supported", ErrProtocol)
	ErrUnmasked        = fmt.Errorf("%w: client frame is not masked", ErrProtocol)
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrProtocol)
)

// Frame is one decoded WebSocket frame with its payload already unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// IsControl reports whether op is a control opcode.
func (op Opcode) IsControl() bool {
	return op >= OpClose
}

// Mask XORs b in place with key, cycling through the four key bytes.
// Applying it twice with the same key restores the original bytes.
func Mask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}

// DecodeFrame decodes one client frame from the start of buf. It returns the
// frame and the number of bytes consumed, or ErrIncomplete when buf does not
// yet hold the header, extended length, masking key and full payload.
// maxPayload <= 0 disables the size limit.
func DecodeFrame(buf []byte, maxPayload int) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, ErrIncomplete
	}

	b0, b1 := buf[0], buf[1]
	fin := b0&0x80 != 0
	op := Opcode(b0 & 0x0F)

	if b0&0x70 != 0 {
		return Frame{}, 0, fmt.Errorf("%w: reserved bits set", ErrProtocol)
	}
	switch op {
	case OpText, OpBinary:
		if !fin {
			return Frame{}, 0, ErrFragmented
		}
	case OpContinuation:
		return Frame{}, 0, ErrFragmented
	case OpClose, OpPing, OpPong:
		if !fin {
			return Frame{}, 0, fmt.Errorf("%w: fragmented control frame", ErrProtocol)
		}
	default:
		return Frame{}, 0, fmt.Errorf("%w: unknown opcode %#x", ErrProtocol, byte(op))
	}
	if b1&0x80 == 0 {
		return Frame{}, 0, ErrUnmasked
	}

	length := uint64(b1 & 0x7F)
	offset := 2
	switch length {
	case 126:
		if len(buf) < 4 {
			return Frame{}, 0, ErrIncomplete
		}
		length = uint64(binary.BigEndian.Uint16(buf[2:4]))
		offset = 4
	case 127:
		if len(buf) < 10 {
			return Frame{}, 0, ErrIncomplete
		}
		length = binary.BigEndian.Uint64(buf[2:10])
		if length>>63 != 0 {
			return Frame{}, 0, fmt.Errorf("%w: invalid payload length", ErrProtocol)
		}
		offset = 10
	}

	if op.IsControl() && length > maxControlPayload {
		return Frame{}, 0, fmt.Errorf("%w: control frame payload of %d bytes", ErrProtocol, length)
	}
	if maxPayload > 0 && length > uint64(maxPayload) {
		return Frame{}, 0, ErrPayloadTooLarge
	}

	if len(buf) < offset+4 {
		return Frame{}, 0, ErrIncomplete
	}
	var key [4]byte
	copy(key[:], buf[offset:offset+4])
	offset += 4

	if uint64(len(buf)-offset) < length {
		return Frame{}, 0, ErrIncomplete
	}

	end := offset + int(length)
	payload := make([]byte, length)
	copy(payload, buf[offset:end])
	Mask(payload, key)

	return Frame{Fin: fin, Opcode: op, Payload: payload}, end, nil
}

// EncodeFrame encodes a final, unmasked server frame using the shortest
// length encoding.
func EncodeFrame(op Opcode, payload []byte) []byte {
	n := len(payload)

	var header []byte
	switch {
	case n <= 125:
		header = []byte{0x80 | byte(op), byte(n)}
	case n <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = 0x80 | byte(op)
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = 0x80 | byte(op)
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}

	frame := make([]byte, 0, len(header)+n)
	frame = append(frame, header...)
	return append(frame, payload...)
}

// ClosePayload builds the body of a close frame.
func ClosePayload(code uint16, reason string) []byte {
	if len(reason) > maxControlPayload-2 {
		reason = reason[:maxControlPayload-2]
	}
	b := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(b, code)
	copy(b[2:], reason)
	return b
}

// CloseCode extracts the status code of a close frame payload.
func CloseCode(payload []byte) uint16 {
	if len(payload) < 2 {
		return CloseNoStatusPresent
	}
	return binary.BigEndian.Uint16(payload)
}
