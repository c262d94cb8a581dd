// Package octet provides the lowest layer of the ColdSync protocol stack:
// big-endian integer helpers over a byte cursor, the CCITT CRC-16 used by
// SLP framing, and the serial line abstraction that the higher layers read
// and write through.
package octet

import "fmt"

// Cursor is a simple big-endian reader/writer over a byte slice. It is used
// to parse and build SLP/PADP/CMP/DLP headers and PDB structures without
// scattering offset arithmetic across every caller.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for reading starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewCursorAt wraps buf for reading starting at pos.
func NewCursorAt(buf []byte, pos int) *Cursor {
	return &Cursor{buf: buf, pos: pos}
}

// Pos returns the current offset.
func (c *Cursor) Pos() int { return c.pos }

// Seek repositions the cursor.
func (c *Cursor) Seek(pos int) { c.pos = pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Bytes returns the underlying buffer.
func (c *Cursor) Bytes() []byte { return c.buf }

func (c *Cursor) need(n int) error {
	if c.pos+n > len(c.buf) {
		return fmt.Errorf("octet: short buffer: need %d bytes at offset %d, have %d", n, c.pos, len(c.buf))
	}
	return nil
}

// GetU8 reads one byte and advances the cursor.
func (c *Cursor) GetU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// PeekU8 reads one byte without advancing the cursor.
func (c *Cursor) PeekU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	return c.buf[c.pos], nil
}

// GetU16 reads a big-endian uint16 and advances the cursor.
func (c *Cursor) GetU16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := uint16(c.buf[c.pos])<<8 | uint16(c.buf[c.pos+1])
	c.pos += 2
	return v, nil
}

// GetU32 reads a big-endian uint32 and advances the cursor.
func (c *Cursor) GetU32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := uint32(c.buf[c.pos])<<24 | uint32(c.buf[c.pos+1])<<16 |
		uint32(c.buf[c.pos+2])<<8 | uint32(c.buf[c.pos+3])
	c.pos += 4
	return v, nil
}

// GetBytes reads n raw bytes and advances the cursor. The returned slice
// aliases the cursor's backing array; callers that need to retain it past
// the next mutation must copy it.
func (c *Cursor) GetBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// PutU8 appends one byte.
func PutU8(buf []byte, v uint8) []byte {
	return append(buf, v)
}

// PutU16 appends a big-endian uint16.
func PutU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// PutU32 appends a big-endian uint32.
func PutU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// GetU8At, GetU16At, GetU32At read without allocating a Cursor, useful when
// a caller already holds a plain slice (e.g. PDB index entries).

func GetU8At(b []byte, off int) uint8 { return b[off] }

func GetU16At(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

func GetU32At(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

// PutU16At and PutU32At write in place into an already-sized buffer.

func PutU16At(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

func PutU32At(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}
