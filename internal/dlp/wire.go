// Package dlp implements the Desktop Link Protocol: a request/response RPC
// running over PADP, used to enumerate and manipulate databases and
// session state on the device.
package dlp

import (
	"fmt"

	"github.com/coldsync/coldsync/internal/octet"
)

// Argument is one (id, bytes) pair carried in a DLP request or response.
// IDs start at 0x20; an id whose top two bits are both set signals the
// "long" wire form (a 16-bit size field and 2 bytes of padding) rather
// than the tiny form (an 8-bit size field, no padding).
type Argument struct {
	ID    byte
	Bytes []byte
}

const longFormMask = 0xC0

func isLongForm(rawID byte) bool {
	return rawID&longFormMask == longFormMask
}

// EncodeArgs serializes a list of arguments in request/response wire form.
func EncodeArgs(args []Argument) []byte {
	var buf []byte
	for _, a := range args {
		if len(a.Bytes) > 0xff || a.ID >= longFormMask {
			buf = append(buf, a.ID|longFormMask)
			buf = octet.PutU16(buf, uint16(len(a.Bytes)))
			buf = append(buf, 0, 0) // 2-byte pad, long form only
		} else {
			buf = append(buf, a.ID)
			buf = append(buf, byte(len(a.Bytes)))
		}
		buf = append(buf, a.Bytes...)
	}
	return buf
}

// DecodeArgs parses count arguments from buf.
func DecodeArgs(buf []byte, count int) ([]Argument, error) {
	args := make([]Argument, 0, count)
	cur := octet.NewCursor(buf)
	for i := 0; i < count; i++ {
		rawID, err := cur.GetU8()
		if err != nil {
			return nil, fmt.Errorf("dlp: argument %d: %w", i, err)
		}
		var size int
		var id byte
		if isLongForm(rawID) {
			id = rawID &^ longFormMask
			sz, err := cur.GetU16()
			if err != nil {
				return nil, fmt.Errorf("dlp: argument %d: %w", i, err)
			}
			if _, err := cur.GetBytes(2); err != nil { // padding
				return nil, fmt.Errorf("dlp: argument %d: %w", i, err)
			}
			size = int(sz)
		} else {
			id = rawID
			sz, err := cur.GetU8()
			if err != nil {
				return nil, fmt.Errorf("dlp: argument %d: %w", i, err)
			}
			size = int(sz)
		}
		data, err := cur.GetBytes(size)
		if err != nil {
			return nil, fmt.Errorf("dlp: argument %d body: %w", i, err)
		}
		raw := make([]byte, len(data))
		copy(raw, data)
		args = append(args, Argument{ID: id, Bytes: raw})
	}
	return args, nil
}

// Request is one DLP command: an opcode (>= 0x10) and its arguments.
type Request struct {
	Opcode byte
	Args   []Argument
}

// Encode serializes a request to wire form.
func (r Request) Encode() []byte {
	buf := make([]byte, 0, 2+16*len(r.Args))
	buf = append(buf, r.Opcode, byte(len(r.Args)))
	buf = append(buf, EncodeArgs(r.Args)...)
	return buf
}

// Response is one DLP reply: echoes the request opcode with the high bit
// set, carries a status code, and a list of result arguments.
type Response struct {
	Opcode byte
	Status Status
	Args   []Argument
}

// DecodeResponse parses buf as a DLP response.
func DecodeResponse(buf []byte) (Response, error) {
	cur := octet.NewCursor(buf)
	opcode, err := cur.GetU8()
	if err != nil {
		return Response{}, err
	}
	argc, err := cur.GetU8()
	if err != nil {
		return Response{}, err
	}
	statusRaw, err := cur.GetU16()
	if err != nil {
		return Response{}, err
	}
	args, err := DecodeArgs(cur.Bytes()[cur.Pos():], int(argc))
	if err != nil {
		return Response{}, err
	}
	return Response{Opcode: opcode, Status: Status(statusRaw), Args: args}, nil
}

// Encode serializes a response to wire form.
func (r Response) Encode() []byte {
	buf := make([]byte, 0, 4+16*len(r.Args))
	buf = append(buf, r.Opcode, byte(len(r.Args)))
	buf = octet.PutU16(buf, uint16(r.Status))
	buf = append(buf, EncodeArgs(r.Args)...)
	return buf
}

// Arg looks up the first argument with the given id.
func (r Response) Arg(id byte) (Argument, bool) {
	for _, a := range r.Args {
		if a.ID == id {
			return a, true
		}
	}
	return Argument{}, false
}

// ResponseOpcodeBit is set in a response's opcode to mark it as a reply
// rather than a request.
const ResponseOpcodeBit = 0x80
