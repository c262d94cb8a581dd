package dlp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundMatchesWrappedError(t *testing.T) {
	raw := checkStatus("ReadAppBlock", StatusNotFound)
	wrapped := fmt.Errorf("dlp: receive reply to %#x: %w", OpReadAppBlock, raw)
	doubleWrapped := fmt.Errorf("sync: download: %w", wrapped)

	assert.True(t, IsNotFound(raw))
	assert.True(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(doubleWrapped))
}

func TestIsNotFoundFalseForOtherStatus(t *testing.T) {
	err := fmt.Errorf("sync: %w", checkStatus("OpenDB", StatusCantOpen))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsNotFound(nil))
}

func TestIsDatabaseScopedMatchesWrappedError(t *testing.T) {
	for _, s := range []Status{StatusTooManyOpen, StatusCantOpen, StatusReadOnly} {
		err := fmt.Errorf("coldsync: open db: %w", fmt.Errorf("dlp: call: %w", checkStatus("OpenDB", s)))
		assert.True(t, IsDatabaseScoped(err), "status %s should be database-scoped", s)
	}
}

func TestIsDatabaseScopedFalseForSessionScoped(t *testing.T) {
	err := fmt.Errorf("coldsync: %w", checkStatus("OpenDB", StatusSystem))
	assert.False(t, IsDatabaseScoped(err))
	assert.False(t, IsDatabaseScoped(nil))
}

func TestCheckStatusOK(t *testing.T) {
	assert.NoError(t, checkStatus("op", StatusNoErr))
}
