package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad input")))
	assert.Equal(t, KindInvalidState, KindOf(InvalidState("wrong status")))
	assert.Equal(t, KindInsufficientStock, KindOf(InsufficientStock("short by %d", 3)))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindConflict, KindOf(Conflict("lost race")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := InsufficientStock("only 2 left")
	outer := fmt.Errorf("approve failed: %w", inner)

	assert.Equal(t, KindInsufficientStock, KindOf(outer))
	assert.True(t, IsKind(outer, KindInsufficientStock))
	assert.False(t, IsKind(outer, KindConflict))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(KindConflict, cause, "id %d already released", 7)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Contains(t, err.Error(), "id 7 already released")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestIsKindNil(t *testing.T) {
	assert.False(t, IsKind(nil, KindValidation))
}
