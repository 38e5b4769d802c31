// Package wire implements the fixed-width binary frames of the Local Chat
// Protocol: the 50-byte Header, the 25-byte Response, and the MessageBody
// that follows an acknowledged Header. All integers are little-endian and
// no field is padded for alignment — the layout is exactly as wide as the
// sum of its fields.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/lanchat/lcpnode/internal/identity"
)

// OpCode identifies the operation carried by a Header.
type OpCode uint8

const (
	OpEcho    OpCode = 0
	OpMessage OpCode = 1
	OpFile    OpCode = 2
)

func (o OpCode) String() string {
	switch o {
	case OpEcho:
		return "Echo"
	case OpMessage:
		return "Message"
	case OpFile:
		return "File"
	default:
		return fmt.Sprintf("OpCode(%d)", uint8(o))
	}
}

// Status is the outcome byte carried by a Response.
type Status uint8

const (
	StatusOK            Status = 0
	StatusBadRequest    Status = 1
	StatusInternalError Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "BadRequest"
	case StatusInternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// HeaderReservedBytes documents Open Question 1 from the protocol design
// notes: the LCP v1.0 document reserves 50 additional bytes for a 100-byte
// header. This implementation carries zero reserved bytes, producing the
// 50-byte frame used on the wire. HeaderSize includes this constant, so
// setting it to 50 builds the 100-byte interoperable-with-the-v1.0-document
// variant (Marshal zero-fills the reserved tail); the wire tests pin the
// 50-byte size and would need updating with it.
const HeaderReservedBytes = 0

const (
	// HeaderSize is the fixed wire size of a Header frame.
	HeaderSize = identity.Size*2 + 1 + 1 + 8 + HeaderReservedBytes
	// ResponseSize is the fixed wire size of a Response frame.
	ResponseSize = 1 + identity.Size + 4
)

// Header precedes every LCP operation.
type Header struct {
	From    identity.UserID
	To      identity.UserID
	Op      OpCode
	BodyID  uint8
	BodyLen uint64
}

// FramingError reports a wire frame that was too short or otherwise
// malformed to decode, as distinct from a protocol-level BadRequest.
type FramingError struct {
	Want, Got int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire: short frame: want %d bytes, got %d", e.Want, e.Got)
}

// Marshal encodes h into exactly HeaderSize bytes.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	n := copy(buf, h.From[:])
	n += copy(buf[n:], h.To[:])
	buf[n] = byte(h.Op)
	n++
	buf[n] = h.BodyID
	n++
	binary.LittleEndian.PutUint64(buf[n:], h.BodyLen)
	return buf
}

// UnmarshalHeader decodes a Header frame. It rejects short buffers with a
// *FramingError rather than panicking or silently truncating.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, &FramingError{Want: HeaderSize, Got: len(buf)}
	}
	var h Header
	n := copy(h.From[:], buf[:identity.Size])
	n += copy(h.To[:], buf[n:n+identity.Size])
	h.Op = OpCode(buf[n])
	n++
	h.BodyID = buf[n]
	n++
	h.BodyLen = binary.LittleEndian.Uint64(buf[n : n+8])
	return h, nil
}

// Response is the 25-byte acknowledgment frame.
type Response struct {
	Status    Status
	Responder identity.UserID
}

// Marshal encodes r into exactly ResponseSize bytes; the 4 reserved bytes
// are always zero.
func (r Response) Marshal() []byte {
	buf := make([]byte, ResponseSize)
	buf[0] = byte(r.Status)
	copy(buf[1:], r.Responder[:])
	return buf
}

// UnmarshalResponse decodes a Response frame.
func UnmarshalResponse(buf []byte) (Response, error) {
	if len(buf) < ResponseSize {
		return Response{}, &FramingError{Want: ResponseSize, Got: len(buf)}
	}
	var r Response
	r.Status = Status(buf[0])
	copy(r.Responder[:], buf[1:1+identity.Size])
	return r, nil
}

// MessageBody is the on-wire body following an acknowledged Message
// header: the same BodyID as its header, then the raw payload bytes.
type MessageBody struct {
	BodyID  uint8
	Payload []byte
}

// Marshal encodes the body as BodyID‖Payload.
func (b MessageBody) Marshal() []byte {
	buf := make([]byte, 1+len(b.Payload))
	buf[0] = b.BodyID
	copy(buf[1:], b.Payload)
	return buf
}

// UnmarshalMessageBody decodes a body frame; buf must be at least 1 byte
// (the BodyID) even for an empty payload.
func UnmarshalMessageBody(buf []byte) (MessageBody, error) {
	if len(buf) < 1 {
		return MessageBody{}, &FramingError{Want: 1, Got: len(buf)}
	}
	payload := make([]byte, len(buf)-1)
	copy(payload, buf[1:])
	return MessageBody{BodyID: buf[0], Payload: payload}, nil
}

// ClassifyLength reports which frame kind a UDP datagram of the given
// length should be decoded as, per the length-based dispatch in §4.4.3.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameResponse
	FrameHeader
)

func ClassifyLength(n int) FrameKind {
	switch n {
	case ResponseSize:
		return FrameResponse
	case HeaderSize:
		return FrameHeader
	default:
		return FrameUnknown
	}
}
