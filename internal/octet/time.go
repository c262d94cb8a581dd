package octet

import "time"

// PalmEpochOffset is the number of seconds between the Palm epoch
// (1904-01-01 00:00:00, local time on the device, which has no notion of
// timezone) and the Unix epoch.
const PalmEpochOffset = 2082844800

// PalmTimeToUnix converts a 32-bit Palm timestamp to a Unix time.Time. A
// zero timestamp means "never set" and is returned as the zero time.Time.
func PalmTimeToUnix(palm uint32) time.Time {
	if palm == 0 {
		return time.Time{}
	}
	return time.Unix(int64(palm)-PalmEpochOffset, 0)
}

// UnixToPalmTime converts t to a 32-bit Palm timestamp. The zero time.Time
// converts to 0 ("never set").
func UnixToPalmTime(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix() + PalmEpochOffset)
}
