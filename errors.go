// Package coldsync drives one PDA-to-desktop synchronization session over
// a point-to-point serial line: the CMP handshake, the DLP request/response
// exchange, and the record-level sync engine built on top of them.
package coldsync

import "errors"

// Error kinds, matching the taxonomy of the design spec §7. These are
// declared only: no layer returns them. The lower protocol layers report
// failures with their own errors (octet.ErrTimeout, padp.ErrAbort,
// *dlp.StatusError, ...), and a session keeps no last-error value.
var (
	// ErrSystem signals an underlying I/O failure; fatal for the session.
	ErrSystem = errors.New("coldsync: system error")
	// ErrTimeout signals no response arrived in the expected window.
	ErrTimeout = errors.New("coldsync: timeout")
	// ErrEOF signals the peer closed the connection.
	ErrEOF = errors.New("coldsync: peer closed connection")
	// ErrAbort signals the peer sent ABORT, or we hit an unrecoverable
	// framing error.
	ErrAbort = errors.New("coldsync: aborted")
	// ErrNoMem signals a local allocation failure.
	ErrNoMem = errors.New("coldsync: out of memory")
	// ErrBadID signals a DLP argument id shape violation.
	ErrBadID = errors.New("coldsync: bad argument id")
	// ErrAckXid signals an ACK whose xid did not match the outstanding
	// request.
	ErrAckXid = errors.New("coldsync: ack xid mismatch")
	// ErrCancelled signals cooperative cancellation by the caller.
	ErrCancelled = errors.New("coldsync: sync cancelled")
)
