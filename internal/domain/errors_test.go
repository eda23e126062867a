package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(nil))
	assert.False(t, IsTerminal(errors.New("connection refused")))

	assert.True(t, IsTerminal(Terminalf("session is %s", StatusCancelled)))
	assert.True(t, IsTerminal(&AssemblyError{SessionID: "s1", Reason: "missing chunks"}))

	// Wrapping keeps the classification.
	wrapped := fmt.Errorf("stage failed: %w", Terminalf("bad input"))
	assert.True(t, IsTerminal(wrapped))
}

func TestAssemblyError_Message(t *testing.T) {
	err := &AssemblyError{SessionID: "s1", Reason: "size mismatch"}
	assert.Equal(t, "assembly of session s1 failed: size mismatch", err.Error())

	cause := errors.New("read failed")
	err = &AssemblyError{SessionID: "s1", Reason: "failed to read chunk 2", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "read failed")
}
