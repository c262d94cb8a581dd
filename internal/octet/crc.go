package octet

// CRC16 implements the CCITT-0x1021 CRC used by SLP framing. The initial
// value is supplied by the caller rather than fixed, because a correctly
// signed SLP packet must CRC to zero across three non-contiguous spans:
// header, body, and the trailing two CRC bytes themselves.
type CRC16 uint16

// Single folds one byte into the running CRC.
func (crc *CRC16) Single(b byte) {
	*crc ^= CRC16(b) << 8
	for i := 0; i < 8; i++ {
		if *crc&0x8000 != 0 {
			*crc = (*crc << 1) ^ 0x1021
		} else {
			*crc <<= 1
		}
	}
}

// Update folds every byte of buf into the running CRC, in order. It is the
// primitive that lets a caller CRC several non-contiguous spans by chaining
// calls: Update(header); Update(body).
func (crc *CRC16) Update(buf []byte) {
	for _, b := range buf {
		crc.Single(b)
	}
}

// Compute is a convenience wrapper for the common case of CRCing one
// contiguous buffer starting from a given initial value.
func Compute(initial CRC16, buf []byte) CRC16 {
	crc := initial
	crc.Update(buf)
	return crc
}
