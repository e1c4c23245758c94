package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/sentinel"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want dErrors.Code
	}{
		{"not found", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"wrapped conflict", fmt.Errorf("update: %w", sentinel.ErrVersionConflict), dErrors.CodeConcurrentModification},
		{"unique violation", sentinel.ErrAlreadyExists, dErrors.CodeDuplicate},
		{"foreign", errors.New("connection reset"), dErrors.CodeInternal},
		{"already domain", dErrors.InvalidState("p", "draft", "matched"), dErrors.CodeInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Translate(tc.err, "proposal", "p-1")
			assert.Equal(t, tc.want, dErrors.CodeOf(err))
		})
	}
	assert.NoError(t, Translate(nil, "proposal", "p-1"))
}
