package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorPredicatesFollowWrapping(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("listing repos: %w", NewRateLimitedError("secondary limit", cause))

	assert.True(t, IsRateLimited(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrCodeRateLimited, Code(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, Code(errors.New("plain")))
	assert.Equal(t, ErrCodeNotFound, Code(NewNotFoundError("organization")))
	assert.True(t, IsUnauthorized(NewUnauthorizedError("bad token")))
}

func TestAppErrorMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: organization not found", NewNotFoundError("organization").Error())
	assert.Equal(t, "INTERNAL_ERROR: fetch (boom)", NewInternalError("fetch", errors.New("boom")).Error())
}
