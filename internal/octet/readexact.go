package octet

import (
	"context"
	"errors"
	"io"
)

// ReadExact reads exactly len(buf) bytes from r, or returns an error. It
// honors ctx cancellation between short reads; a port with a configured
// read timeout will itself return its own error (a timeout error or io.EOF,
// depending on the port) on a dead line, but
// ctx lets a caller impose an overall deadline spanning several frames
// (e.g. PADP's per-fragment ACK wait).
func ReadExact(ctx context.Context, r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) && read == len(buf) {
				return nil
			}
			return err
		}
	}
	return nil
}
