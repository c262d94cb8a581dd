// Package cmp implements the Connection Management Protocol: the one-shot
// handshake that runs directly over PADP at the start of a session to
// negotiate the line speed the rest of the session will use.
package cmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/padp"
)

// Packet types.
const (
	TypeWakeup   byte = 1
	TypeInit     byte = 2
	TypeAbort    byte = 3
	TypeExtended byte = 4
)

// Flag bits on an INIT packet.
const FlagChangeRate byte = 0x80

const packetLen = 10 // type(1) flags(1) vmajor(1) vminor(1) reserved(2) rate(4)

var (
	ErrNotCMP      = errors.New("cmp: message was not a CMP packet")
	ErrAborted     = errors.New("cmp: peer aborted handshake")
	ErrUnsupportedRate = errors.New("cmp: no speed in the candidate table was accepted")
)

// Packet is the 10-byte CMP wire structure.
type Packet struct {
	Type     byte
	Flags    byte
	VMajor   byte
	VMinor   byte
	Reserved uint16
	Rate     uint32
}

// Encode serializes p to its 10-byte wire form.
func (p Packet) Encode() []byte {
	buf := make([]byte, 0, packetLen)
	buf = append(buf, p.Type, p.Flags, p.VMajor, p.VMinor)
	buf = octet.PutU16(buf, p.Reserved)
	buf = octet.PutU32(buf, p.Rate)
	return buf
}

// Decode parses a CMP packet from its wire form.
func Decode(b []byte) (Packet, error) {
	if len(b) < packetLen {
		return Packet{}, fmt.Errorf("cmp: short packet: %d bytes", len(b))
	}
	return Packet{
		Type:     b[0],
		Flags:    b[1],
		VMajor:   b[2],
		VMinor:   b[3],
		Reserved: octet.GetU16At(b, 4),
		Rate:     octet.GetU32At(b, 6),
	}, nil
}

// SpeedSetter reconfigures the underlying serial line to a new bit rate.
type SpeedSetter interface {
	SetSpeed(bps int) error
}

// Handshake waits for a WAKEUP from the device, replies with an INIT
// requesting the fastest rate the line will accept (or preferredBps if
// set and supported), and reconfigures port to that rate. It returns the
// negotiated bps.
//
// initialBps is the rate the line is already open and talking at (the
// rate port was opened with); the handshake exchange itself always
// happens at initialBps, never at a candidate under test.
func Handshake(ctx context.Context, p *padp.Layer, port SpeedSetter, initialBps, preferredBps int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := awaitWakeup(ctx, p); err != nil {
		return 0, err
	}

	// Mirrors find_max_speed: test each candidate rate against the local
	// line before ever proposing it to the device, then revert to
	// initialBps so the INIT exchange itself still happens at the rate
	// the device is listening on. Only the rate that wins negotiation is
	// committed for good, after the exchange below completes.
	negotiated, err := octet.NegotiateSpeed(preferredBps, func(bps int) error {
		if err := port.SetSpeed(bps); err != nil {
			return err
		}
		if err := port.SetSpeed(initialBps); err != nil {
			return err
		}
		init := Packet{
			Type:  TypeInit,
			Flags: FlagChangeRate,
			Rate:  uint32(bps),
		}
		if err := p.Write(ctx, init.Encode()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedRate, err)
	}

	// The PDA needs a moment to switch its own UART before the desktop
	// flips its line; racing this causes the first post-handshake frame
	// to be lost to line noise.
	time.Sleep(50 * time.Millisecond)

	if err := port.SetSpeed(negotiated); err != nil {
		return 0, fmt.Errorf("cmp: reconfigure line to %d bps: %w", negotiated, err)
	}
	logger.Info("cmp: handshake complete", "bps", negotiated)
	return negotiated, nil
}

func awaitWakeup(ctx context.Context, p *padp.Layer) error {
	for {
		msg, err := p.Read(ctx)
		if err != nil {
			return err
		}
		pkt, err := Decode(msg)
		if err != nil {
			continue
		}
		switch pkt.Type {
		case TypeWakeup:
			return nil
		case TypeAbort:
			return ErrAborted
		default:
			continue
		}
	}
}
