package dlp

import (
	"errors"
	"fmt"
)

// Status is the DLP response status code. Zero means success; everything
// else is a stable, named error taxonomy the sync engine interprets
// per-code rather than treating every failure as fatal.
type Status uint16

const (
	StatusNoErr          Status = 0
	StatusGeneralError   Status = 1
	StatusNotFound       Status = 2
	StatusNoneOpen       Status = 3
	StatusDatabaseOpen   Status = 4
	StatusTooManyOpen    Status = 5
	StatusExists         Status = 6
	StatusCantOpen       Status = 7
	StatusRecordDeleted  Status = 8
	StatusRecordBusy     Status = 9
	StatusNotSupported   Status = 10
	StatusUnusedSlot     Status = 11
	StatusReadOnly       Status = 12
	StatusSpace          Status = 13
	StatusLimit          Status = 14
	StatusUserCancelled  Status = 15
	StatusBadArgWrapSize Status = 16
	StatusArgMissing     Status = 17
	StatusArgSize        Status = 18
	StatusSystem         Status = 19
)

var statusDescriptions = map[Status]string{
	StatusNoErr:          "no error",
	StatusGeneralError:   "an unknown error occurred",
	StatusNotFound:       "not found",
	StatusNoneOpen:       "no database is currently open",
	StatusDatabaseOpen:   "database is already open",
	StatusTooManyOpen:    "too many databases are open",
	StatusExists:         "database already exists",
	StatusCantOpen:       "couldn't open database",
	StatusRecordDeleted:  "record has already been deleted",
	StatusRecordBusy:     "record is busy (locked)",
	StatusNotSupported:   "feature not supported",
	StatusUnusedSlot:     "unused record slot",
	StatusReadOnly:       "database is read-only",
	StatusSpace:          "not enough space to complete command",
	StatusLimit:          "size limit exceeded",
	StatusUserCancelled:  "user cancelled the operation",
	StatusBadArgWrapSize: "bad argument wrapper size",
	StatusArgMissing:     "required argument missing",
	StatusArgSize:        "bad argument size",
	StatusSystem:         "internal system error",
}

// String returns a human-readable description, falling back to the
// numeric value for unrecognized codes.
func (s Status) String() string {
	if desc, ok := statusDescriptions[s]; ok {
		return desc
	}
	return fmt.Sprintf("unknown DLP status %d", uint16(s))
}

// OK reports whether the status represents success.
func (s Status) OK() bool { return s == StatusNoErr }

// NotFound reports whether the status is the routinely non-fatal
// "not found" code (absent AppInfo/sort block, exhausted enumerator).
func (s Status) NotFound() bool { return s == StatusNotFound }

// StatusError wraps a non-OK DLP status with the opcode name that
// produced it, so callers can distinguish per-database-skip statuses
// (TooManyOpen, CantOpen, ReadOnly), the routinely-absorbed NotFound, and
// everything else (session-scoped per spec.md §4.5).
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return "dlp: " + e.Op + ": " + e.Status.String()
}

// checkStatus returns nil for StatusNoErr, else a *StatusError.
func checkStatus(op string, s Status) error {
	if s.OK() {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}

// IsNotFound reports whether err is, or wraps, a *StatusError carrying
// StatusNotFound.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status.NotFound()
}

// IsDatabaseScoped reports whether err is, or wraps, a *StatusError
// carrying one of the statuses that should skip just the current database
// rather than abort the session (spec.md §4.5).
func IsDatabaseScoped(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Status {
	case StatusTooManyOpen, StatusCantOpen, StatusReadOnly:
		return true
	}
	return false
}
