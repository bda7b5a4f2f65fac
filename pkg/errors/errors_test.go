package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("book: %w", Clone(ErrSlotConflict, "teacher busy"))

	got := FromError(wrapped)

	assert.Equal(t, ErrSlotConflict.Code, got.Code)
	assert.Equal(t, http.StatusConflict, got.Status)
	assert.Equal(t, "teacher busy", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))

	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Nil(t, FromError(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	err := Invalid("week_start must be YYYY-MM-DD")

	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, HasCode(fmt.Errorf("ctx: %w", err), ErrInvalidArgument.Code))
}
