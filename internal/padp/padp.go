// Package padp implements the Packet Assembly/Disassembly protocol: a
// reliable, fragmented message layer running over SLP. It retransmits
// unacknowledged data fragments, reassembles multi-fragment messages, and
// shares its transaction id space with the SLP layer beneath it.
package padp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/slp"
)

// Fragment types.
const (
	FragData   byte = 1
	FragAck    byte = 2
	FragNak    byte = 3 // obsolete, never sent; recognized so it can be rejected cleanly
	FragTickle byte = 4
	FragAbort  byte = 8
)

// Fragment header flag bits.
const (
	FlagFirst      byte = 0x80
	FlagLast       byte = 0x40
	FlagErrNoMem   byte = 0x20
	FlagLongHeader byte = 0x10
)

const fragmentHeaderLen = 4
const maxFragmentBody = 1024
const maxMessageSize = 64 * 1024

// Timeouts and retry budget, per spec §5.
const (
	AckTimeout      = 2 * time.Second
	AssemblyTimeout = 30 * time.Second
	MaxRetries      = 10
)

var (
	ErrAbort            = errors.New("padp: received ABORT")
	ErrUnexpectedAck    = errors.New("padp: received ACK while expecting DATA")
	ErrAckXidMismatch   = errors.New("padp: ack xid did not match request")
	ErrNoAckAfterRetries = errors.New("padp: no ack after max retries")
	ErrOffsetMismatch   = errors.New("padp: fragment offset did not match assembly cursor")
	ErrMessageTooLarge  = errors.New("padp: message exceeds 64KiB assembly limit")
	ErrNak              = errors.New("padp: received obsolete NAK fragment")
)

// Layer assembles/disassembles messages over one SLP connection to one
// remote endpoint.
type Layer struct {
	slp    *slp.Layer
	remote slp.Address
	xid    byte
	logger *slog.Logger
}

// New creates a PADP layer over slpLayer, addressing remote.
func New(slpLayer *slp.Layer, remote slp.Address, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{slp: slpLayer, remote: remote, logger: logger}
}

// nextXid increments the shared SLP/PADP transaction id, skipping the two
// reserved values.
func (l *Layer) nextXid() byte {
	for {
		l.xid++
		if l.xid != 0x00 && l.xid != 0xff {
			return l.xid
		}
	}
}

func buildHeader(typ, flags byte, sizeOrOffset uint16, body []byte) []byte {
	hdr := make([]byte, 0, fragmentHeaderLen+len(body))
	hdr = append(hdr, typ, flags)
	hdr = octet.PutU16(hdr, sizeOrOffset)
	return append(hdr, body...)
}

// Write sends data as one or more PADP fragments and waits for it to be
// fully acknowledged, retransmitting on timeout up to MaxRetries times.
func (l *Layer) Write(ctx context.Context, data []byte) error {
	xid := l.nextXid()

	fragments := splitFragments(data)
	for i, frag := range fragments {
		flags := byte(0)
		size := uint16(0)
		if i == 0 {
			flags |= FlagFirst
			size = uint16(len(data))
		} else {
			size = uint16(frag.offset)
		}
		if i == len(fragments)-1 {
			flags |= FlagLast
		}
		wire := buildHeader(FragData, flags, size, frag.body)

		if err := l.sendWithRetry(ctx, xid, wire); err != nil {
			return err
		}
	}
	return nil
}

type fragment struct {
	offset int
	body   []byte
}

func splitFragments(data []byte) []fragment {
	if len(data) == 0 {
		return []fragment{{offset: 0, body: nil}}
	}
	var frags []fragment
	for off := 0; off < len(data); off += maxFragmentBody {
		end := off + maxFragmentBody
		if end > len(data) {
			end = len(data)
		}
		frags = append(frags, fragment{offset: off, body: data[off:end]})
	}
	return frags
}

// sendWithRetry sends wire over SLP with the given xid and waits for a
// matching ACK, retransmitting the same bytes on timeout.
func (l *Layer) sendWithRetry(ctx context.Context, xid byte, wire []byte) error {
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if err := l.slp.Write(ctx, l.remote, xid, wire); err != nil {
			return fmt.Errorf("padp: write fragment: %w", err)
		}
		err := l.awaitAck(ctx, xid)
		if err == nil {
			return nil
		}
		if !errors.Is(err, octet.ErrTimeout) && !octet.IsTimeout(err) {
			return err
		}
		l.logger.Debug("padp: ack timeout, retransmitting", "xid", xid, "attempt", attempt)
	}
	return ErrNoAckAfterRetries
}

// awaitAck blocks for one ACK (or ABORT, or TICKLE which resets the wait
// without counting as a retry) matching xid.
func (l *Layer) awaitAck(ctx context.Context, xid byte) error {
	deadline := time.Now().Add(AckTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return octet.ErrTimeout
		}
		readCtx, cancel := context.WithTimeout(ctx, remaining)
		_, _, gotXid, body, err := l.slp.Read(readCtx)
		cancel()
		if err != nil {
			if octet.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
				return octet.ErrTimeout
			}
			return err
		}
		if len(body) < fragmentHeaderLen {
			continue
		}
		typ := body[0]
		switch typ {
		case FragTickle:
			deadline = time.Now().Add(AckTimeout)
			continue
		case FragAbort:
			return ErrAbort
		case FragAck:
			if gotXid != xid {
				return ErrAckXidMismatch
			}
			return nil
		default:
			continue
		}
	}
}

// assembly tracks in-progress reassembly of a multi-fragment message.
type assembly struct {
	buf   []byte
	total int
	have  int
}

// Read blocks until it has reassembled one complete message, acknowledging
// each fragment as it arrives.
func (l *Layer) Read(ctx context.Context) ([]byte, error) {
	var asm *assembly
	deadline := time.Now().Add(AssemblyTimeout)

	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if asm != nil {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, octet.ErrTimeout
			}
			readCtx, cancel = context.WithTimeout(ctx, remaining)
		}
		remote, _, xid, body, err := l.slp.Read(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if octet.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
				return nil, octet.ErrTimeout
			}
			return nil, err
		}
		if len(body) < fragmentHeaderLen {
			continue
		}
		typ := body[0]
		flags := body[1]
		sizeOrOffset := octet.GetU16At(body, 2)
		data := body[fragmentHeaderLen:]

		switch typ {
		case FragTickle:
			continue
		case FragAck:
			return nil, ErrUnexpectedAck
		case FragAbort:
			return nil, ErrAbort
		case FragNak:
			return nil, ErrNak
		case FragData:
			// fallthrough to handling below
		default:
			continue
		}

		first := flags&FlagFirst != 0
		last := flags&FlagLast != 0

		switch {
		case first && last:
			if err := l.ack(ctx, remote, xid, flags, sizeOrOffset); err != nil {
				return nil, err
			}
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil

		case first:
			total := int(sizeOrOffset)
			if total > maxMessageSize {
				// Go slice allocation does not fail softly the way a C
				// malloc does; the declared-size cap is our equivalent
				// unrecoverable-allocation condition.
				l.ackNoMem(ctx, remote, xid, flags, sizeOrOffset)
				return nil, ErrMessageTooLarge
			}
			buf := make([]byte, total)
			n := copy(buf, data)
			asm = &assembly{buf: buf, total: total, have: n}
			deadline = time.Now().Add(AssemblyTimeout)
			if err := l.ack(ctx, remote, xid, flags, sizeOrOffset); err != nil {
				return nil, err
			}

		default:
			if asm == nil {
				return nil, ErrOffsetMismatch
			}
			offset := int(sizeOrOffset)
			if offset != asm.have {
				return nil, ErrOffsetMismatch
			}
			n := copy(asm.buf[asm.have:], data)
			asm.have += n
			deadline = time.Now().Add(AssemblyTimeout)
			if err := l.ack(ctx, remote, xid, flags, sizeOrOffset); err != nil {
				return nil, err
			}
			if last {
				return asm.buf, nil
			}
		}
	}
}

// ack replies to a data fragment, echoing its flags and size/offset field
// and using the data frame's own xid -- SLP and PADP share one xid space.
func (l *Layer) ack(ctx context.Context, remote slp.Address, xid byte, flags byte, sizeOrOffset uint16) error {
	wire := buildHeader(FragAck, flags, sizeOrOffset, nil)
	return l.slp.Write(ctx, remote, xid, wire)
}

// ackNoMem replies with the ERR-NO-MEM flag set when assembly buffer
// allocation fails.
func (l *Layer) ackNoMem(ctx context.Context, remote slp.Address, xid byte, flags byte, sizeOrOffset uint16) {
	wire := buildHeader(FragAck, flags|FlagErrNoMem, sizeOrOffset, nil)
	_ = l.slp.Write(ctx, remote, xid, wire)
}
