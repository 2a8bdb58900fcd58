package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunError_Format(t *testing.T) {
	cause := errors.New("disk full")
	err := ledgerError("1001", "store_es", "write status CLONED", cause)

	assert.Equal(t, "LEDGER: write status CLONED (product=1001, store=store_es): disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, `CONFIG: unknown store "x"`, configError("unknown store %q", "x").Error())
}

func TestRunError_Predicates(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", &RunError{Code: ErrCodeTransition, Message: "refusing"})

	assert.True(t, IsTransitionError(wrapped))
	assert.False(t, IsLedgerError(wrapped))
	assert.False(t, IsConfigError(errors.New("plain")))
	assert.True(t, IsDiscoveryError(&RunError{Code: ErrCodeDiscovery}))
}

func TestOutcome_Failed(t *testing.T) {
	assert.False(t, Outcome{Action: ActionClone, To: "DONE_ES"}.Failed())
	assert.False(t, Outcome{Action: ActionClone, To: "CLONED"}.Failed())
	assert.True(t, Outcome{Action: ActionClone, To: "ERROR_CLONING"}.Failed())
	assert.True(t, Outcome{Action: ActionTranslate, To: "CLONED", Error: "refusing"}.Failed())
	assert.False(t, Outcome{Action: ActionSkip, To: "ERROR_CLONING"}.Failed())
}
