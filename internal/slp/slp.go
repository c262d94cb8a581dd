// Package slp implements the Serial Link Protocol, the outermost framing
// layer of the ColdSync wire stack: a preamble, a checksummed header
// carrying source/destination/protocol/size/xid, the body, and a trailing
// CRC-16 over the whole frame.
package slp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldsync/coldsync/internal/octet"
)

// Preamble is the fixed 3-byte marker that opens every SLP frame.
var Preamble = [3]byte{0xBE, 0xEF, 0xED}

const headerLen = 10 // preamble(3) + dest(1) + src(1) + protocol(1) + size(2) + xid(1) + checksum(1)
const checksumSpan = 9 // everything in the header preceding the checksum byte itself

// Protocol tags carried in the SLP header. These identify which layer
// above SLP owns a frame's body.
const (
	ProtoLoopback byte = 0x00
	ProtoPADP     byte = 0x02
)

// Address is a wire endpoint: a protocol tag plus a port byte. Frames whose
// destination address does not match a connection's bound local address
// are discarded -- this is the mechanism that silently drops the device's
// loopback probe frames at session start.
type Address struct {
	Protocol byte
	Port     byte
}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x", a.Protocol, a.Port)
}

// Stats counts frames dropped for each recoverable reason, exposed so
// callers can log or assert on resynchronization behavior in tests.
type Stats struct {
	BadPreamble   uint64
	BadChecksum   uint64
	BadCRC        uint64
	AddressMismatch uint64
}

// Layer owns one SLP connection: the underlying byte stream, the address
// it is bound to, and the growth-on-demand input buffer. It exposes the
// last received xid so PADP can echo it when forming an ACK -- SLP and
// PADP share one xid space by design (see design notes on xid coupling).
type Layer struct {
	port    octet.Port
	local   Address
	inbuf   []byte
	lastXid byte
	Stats   Stats
	logger  *slog.Logger
}

// New creates an SLP layer bound to local over port.
func New(port octet.Port, local Address, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{port: port, local: local, logger: logger, inbuf: make([]byte, 256)}
}

// LastXid returns the xid of the most recently accepted frame.
func (l *Layer) LastXid() byte { return l.lastXid }

func (l *Layer) ensureCap(n int) {
	if cap(l.inbuf) < n {
		buf := make([]byte, n)
		l.inbuf = buf
	} else {
		l.inbuf = l.inbuf[:n]
	}
}

// Read blocks until it accepts a frame addressed to the layer's local
// address, or ctx is done, or the port reports EOF/timeout. On success it
// returns the remote endpoint (the frame's source address), the frame's
// protocol tag and xid, and a borrow of the body -- valid only until the
// next call to Read.
//
// Malformed or misaddressed frames are dropped silently: framing resumes
// from the next byte rather than surfacing an error, matching real device
// behavior where loopback probes and line noise are routine.
func (l *Layer) Read(ctx context.Context) (remote Address, protocol byte, xid byte, body []byte, err error) {
	for {
		select {
		case <-ctx.Done():
			return Address{}, 0, 0, nil, ctx.Err()
		default:
		}

		if err := l.syncPreamble(ctx); err != nil {
			return Address{}, 0, 0, nil, err
		}

		hdr := make([]byte, headerLen-3)
		if err := octet.ReadExact(ctx, l.port, hdr); err != nil {
			return Address{}, 0, 0, nil, err
		}
		dest := hdr[0]
		src := hdr[1]
		proto := hdr[2]
		size := octet.GetU16At(hdr, 3)
		frameXid := hdr[5]
		wantChecksum := hdr[6]

		sum := byte(0)
		for _, b := range Preamble {
			sum += b
		}
		for _, b := range hdr[:6] {
			sum += b
		}
		if sum != wantChecksum {
			l.Stats.BadChecksum++
			l.logger.Debug("slp: bad header checksum, resynchronizing")
			continue
		}

		l.ensureCap(int(size))
		body := l.inbuf[:size]
		if size > 0 {
			if err := octet.ReadExact(ctx, l.port, body); err != nil {
				return Address{}, 0, 0, nil, err
			}
		}

		crcBytes := make([]byte, 2)
		if err := octet.ReadExact(ctx, l.port, crcBytes); err != nil {
			return Address{}, 0, 0, nil, err
		}
		gotCRC := octet.GetU16At(crcBytes, 0)

		crc := octet.CRC16(0)
		crc.Update(Preamble[:])
		crc.Update(hdr[:7])
		crc.Update(body)
		if uint16(crc) != gotCRC {
			l.Stats.BadCRC++
			l.logger.Debug("slp: bad crc, resynchronizing")
			continue
		}

		if dest != l.local.Port || proto != l.local.Protocol {
			l.Stats.AddressMismatch++
			l.logger.Debug("slp: address mismatch, discarding frame", "dest", dest, "proto", proto)
			continue
		}

		l.lastXid = frameXid
		return Address{Protocol: proto, Port: src}, proto, frameXid, body, nil
	}
}

// syncPreamble consumes bytes one at a time until it sees the 3-byte
// preamble, sliding forward on mismatch rather than giving up.
func (l *Layer) syncPreamble(ctx context.Context) error {
	var window [3]byte
	filled := 0
	one := make([]byte, 1)
	for {
		if err := octet.ReadExact(ctx, l.port, one); err != nil {
			return err
		}
		if filled < 3 {
			window[filled] = one[0]
			filled++
		} else {
			window[0], window[1], window[2] = window[1], window[2], one[0]
		}
		if filled == 3 && window == Preamble {
			return nil
		}
		if filled == 3 {
			l.Stats.BadPreamble++
		}
	}
}

// Write frames body as a PADP (or other protocol) packet addressed to
// remote, with the given xid, and performs the header/body/crc writes in
// order.
func (l *Layer) Write(ctx context.Context, remote Address, xid byte, body []byte) error {
	hdr := make([]byte, 0, headerLen)
	hdr = append(hdr, Preamble[:]...)
	hdr = append(hdr, remote.Port, l.local.Port, remote.Protocol)
	hdr = octet.PutU16(hdr, uint16(len(body)))
	hdr = append(hdr, xid)

	sum := byte(0)
	for _, b := range hdr {
		sum += b
	}
	hdr = append(hdr, sum)

	crc := octet.CRC16(0)
	crc.Update(hdr)
	crc.Update(body)
	trailer := octet.PutU16(nil, uint16(crc))

	if _, err := l.port.Write(hdr); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := l.port.Write(body); err != nil {
			return err
		}
	}
	_, err := l.port.Write(trailer)
	return err
}
