package octet

// SpeedTable lists candidate bps values in the order CMP tries them when
// negotiating the fastest rate the desktop's line is willing to set. The
// order matters: negotiation walks this slice top to bottom and stops at
// the first value the platform accepts.
var SpeedTable = []int{
	230400, 115200, 76800, 57600, 38400, 28800,
	19200, 14400, 9600, 7200, 4800, 2400, 1200,
}

// SupportsSpeed reports whether bps appears in SpeedTable.
func SupportsSpeed(bps int) bool {
	for _, candidate := range SpeedTable {
		if candidate == bps {
			return true
		}
	}
	return false
}

// NegotiateSpeed returns the highest entry of SpeedTable that try accepts,
// calling try(bps) for each candidate in order until one succeeds. If
// preferred is non-zero it is tried first regardless of position in the
// table (used when configuration overrides the negotiated default).
func NegotiateSpeed(preferred int, try func(bps int) error) (int, error) {
	if preferred != 0 {
		if err := try(preferred); err == nil {
			return preferred, nil
		}
	}
	var lastErr error
	for _, bps := range SpeedTable {
		if bps == preferred {
			continue
		}
		if err := try(bps); err == nil {
			return bps, nil
		} else {
			lastErr = err
		}
	}
	return 0, lastErr
}
