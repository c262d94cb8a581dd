package dlp

import (
	"fmt"
	"time"

	"github.com/coldsync/coldsync/internal/octet"
)

// EncodeDateTime serializes t as the 8-byte {u16 year, u8 month, u8 day,
// u8 hour, u8 minute, u8 second, u8 pad} tuple.
func EncodeDateTime(t time.Time) []byte {
	buf := make([]byte, 0, 8)
	if t.IsZero() {
		buf = octet.PutU16(buf, 0)
		return append(buf, 0, 0, 0, 0, 0, 0)
	}
	buf = octet.PutU16(buf, uint16(t.Year()))
	buf = append(buf, byte(t.Month()), byte(t.Day()), byte(t.Hour()), byte(t.Minute()), byte(t.Second()), 0)
	return buf
}

// DecodeDateTime parses the 8-byte tuple back to a time.Time. A zero year
// decodes to the zero time.Time.
func DecodeDateTime(b []byte) (time.Time, error) {
	if len(b) < 8 {
		return time.Time{}, fmt.Errorf("dlp: short datetime: %d bytes", len(b))
	}
	year := octet.GetU16At(b, 0)
	if year == 0 {
		return time.Time{}, nil
	}
	month, day, hour, minute, second := b[2], b[3], b[4], b[5], b[6]
	return time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.Local), nil
}

// EncodeName32 NUL-pads s to the fixed 32-byte database-name field width.
func EncodeName32(s string) []byte {
	buf := make([]byte, 32)
	n := copy(buf, s)
	_ = n
	return buf
}

// DecodeName32 trims trailing NULs from a 32-byte name field.
func DecodeName32(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
