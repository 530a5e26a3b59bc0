package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{0, ErrorTypeNetwork},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, FromStatusCode(tt.code))
		})
	}
}

func TestWrappedErrorInspection(t *testing.T) {
	base := &Error{Type: ErrorTypeRateLimit, Code: 429, Message: "slow down", RetryAfter: 3 * time.Second}
	wrapped := fmt.Errorf("fetch page: %w", base)

	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(wrapped, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.Equal(t, 3*time.Second, RetryAfterOf(wrapped))
	assert.True(t, IsRetryable(TypeOf(wrapped)))

	assert.Equal(t, ErrorTypeUnknown, TypeOf(fmt.Errorf("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(FromStatusCode(429)))
	assert.True(t, IsRetryable(FromStatusCode(502)))
	assert.False(t, IsRetryable(FromStatusCode(404)))
	assert.False(t, IsRetryable(FromStatusCode(401)))
}
