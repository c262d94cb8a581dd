package dlp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldsync/coldsync/internal/octet"
	"github.com/coldsync/coldsync/internal/padp"
)

// Client issues DLP requests over one PADP layer and decodes their
// responses. Exactly one request is ever in flight: every call blocks for
// its response before returning, matching the single-threaded ordering
// guarantee of the whole stack (spec.md §5).
type Client struct {
	padp   *padp.Layer
	logger *slog.Logger
}

// New creates a DLP client over padpLayer.
func New(padpLayer *padp.Layer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{padp: padpLayer, logger: logger}
}

// Call sends req and returns its response. A non-nil error means a
// transport-level failure (timeout, abort, malformed reply); a DLP-level
// failure is reported in the returned Response's Status and is not an
// error by itself -- callers decide per spec.md §4.5's error semantics
// (NotFound is routinely non-fatal, TooManyOpen/CantOpen/ReadOnly skip
// just the one database, everything else is session-scoped).
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	wire := req.Encode()
	if err := c.padp.Write(ctx, wire); err != nil {
		return Response{}, fmt.Errorf("dlp: send %#x: %w", req.Opcode, err)
	}
	raw, err := c.padp.Read(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("dlp: receive reply to %#x: %w", req.Opcode, err)
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		return Response{}, fmt.Errorf("dlp: decode reply to %#x: %w", req.Opcode, err)
	}
	if resp.Opcode != req.Opcode|ResponseOpcodeBit {
		return Response{}, fmt.Errorf("dlp: opcode mismatch: sent %#x, got reply for %#x", req.Opcode, resp.Opcode&^ResponseOpcodeBit)
	}
	c.logger.Debug("dlp: call", "opcode", req.Opcode, "status", resp.Status)
	return resp, nil
}

func arg(id byte, b []byte) Argument { return Argument{ID: id, Bytes: b} }

func u16arg(id byte, v uint16) Argument  { return arg(id, octet.PutU16(nil, v)) }
func u32arg(id byte, v uint32) Argument  { return arg(id, octet.PutU32(nil, v)) }
func u8arg(id byte, v byte) Argument     { return arg(id, []byte{v}) }
func nameArg(id byte, s string) Argument { return arg(id, EncodeName32(s)) }
