package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidStateCarriesStates(t *testing.T) {
	err := InvalidState("p-1", "approved", "nda_pending")

	assert.Equal(t, CodeInvalidState, err.Code)
	assert.Equal(t, "p-1", err.EntityID)
	assert.Equal(t, "approved", err.CurrentState)
	assert.Equal(t, "nda_pending", err.AttemptedState)
	assert.Contains(t, err.Error(), "[approved -> nda_pending]")
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := Conflict("p-1", 3, 4)
	wrapped := fmt.Errorf("accept candidate: %w", base)

	assert.True(t, HasCode(wrapped, CodeConcurrentModification))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.Equal(t, CodeConcurrentModification, CodeOf(wrapped))

	de, ok := As(wrapped)
	require.True(t, ok)
	assert.True(t, de.Retryable())
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "failed to save proposal")

	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Retryable())
}

func TestWithEntityCopies(t *testing.T) {
	base := New(CodeValidation, "title is required")
	scoped := base.WithEntity("p-9")

	assert.Empty(t, base.EntityID)
	assert.Equal(t, "p-9", scoped.EntityID)
}
