package octet

import (
	"net"
	"time"
)

// memPort adapts a net.Conn (as returned by net.Pipe) to the Port
// interface for tests: SLP/PADP/CMP exercise real framing and timeout
// logic without a physical serial line.
type memPort struct {
	net.Conn
	speed int
}

// NewMemPortPair returns two connected in-memory ports, analogous to a
// loopback serial cable, for layer-level tests.
func NewMemPortPair() (Port, Port) {
	a, b := net.Pipe()
	return &memPort{Conn: a}, &memPort{Conn: b}
}

func (p *memPort) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return p.Conn.SetReadDeadline(time.Time{})
	}
	return p.Conn.SetReadDeadline(time.Now().Add(d))
}

func (p *memPort) SetSpeed(bps int) error {
	p.speed = bps
	return nil
}
