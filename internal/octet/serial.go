package octet

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/tarm/serial"
)

// ErrTimeout is returned by the PADP layer when its ACK wait or its wait
// for the next fragment runs past the caller-supplied deadline.
var ErrTimeout = errors.New("octet: read timeout")

// IsTimeout reports whether err represents an expired read deadline, be it
// our own ErrTimeout or the net.Error form that net.Pipe-backed test ports
// (and any net.Conn-based Port) return.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Port is the minimal serial line surface the higher protocol layers need:
// byte-stream I/O plus the ability to renegotiate line speed mid-session
// (CMP renegotiates once, right after the WAKEUP/INIT exchange).
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
	SetSpeed(bps int) error
}

// tarmPort adapts github.com/tarm/serial to the Port interface. tarm/serial
// has no live reconfiguration call, so SetSpeed closes and reopens the
// underlying fd at the new baud rate -- mirroring the way the real device
// driver must toggle the line after a CMP speed-change request.
type tarmPort struct {
	name        string
	cur         *serial.Port
	size        byte
	bps         int
	readTimeout time.Duration
}

// OpenSerial opens name at the given initial bps using 8N1 framing, the
// framing every Palm device session uses.
func OpenSerial(name string, bps int) (Port, error) {
	p := &tarmPort{name: name, size: 8}
	if err := p.reopen(bps, 0); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *tarmPort) reopen(bps int, timeout time.Duration) error {
	if p.cur != nil {
		_ = p.cur.Close()
	}
	cfg := &serial.Config{
		Name:        p.name,
		Baud:        bps,
		Size:        p.size,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return err
	}
	p.cur = port
	p.bps = bps
	p.readTimeout = timeout
	return nil
}

func (p *tarmPort) Read(b []byte) (int, error)  { return p.cur.Read(b) }
func (p *tarmPort) Write(b []byte) (int, error) { return p.cur.Write(b) }
func (p *tarmPort) Close() error                { return p.cur.Close() }

// SetReadTimeout changes the blocking-read deadline. tarm/serial only
// accepts a timeout at open time, so this reopens the port at its current
// speed.
func (p *tarmPort) SetReadTimeout(d time.Duration) error {
	return p.reopen(p.bps, d)
}

// SetSpeed reconfigures the line to bps, preserving the current read
// timeout. The CMP handshake calls it to probe each candidate rate, to
// revert after each probe, and once more to switch to the negotiated rate.
func (p *tarmPort) SetSpeed(bps int) error {
	return p.reopen(bps, p.readTimeout)
}
