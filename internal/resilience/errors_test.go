package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("census: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain", errors.New("invalid input: missing field"), false},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{Err: "timeout", IsTimeout: true}, true},
		{"i/o timeout text", errors.New("read tcp 10.0.0.1: i/o timeout"), true},
		{"broken pipe text", errors.New("write: Broken Pipe"), true},
		{"status 503", statusErr(503), true},
		{"status 404", statusErr(404), false},
		{"wrapped status 429", fmt.Errorf("acs: %w", statusErr(429)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 204, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestForStatus(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, ForStatus(nil, 503))
	assert.True(t, IsTransient(ForStatus(base, 503)))
	assert.Same(t, base, ForStatus(base, 400))
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner, 502)

	assert.True(t, errors.Is(te, inner))
	assert.Equal(t, "inner", te.Error())
	assert.Equal(t, 502, te.StatusCode)
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("unexpected status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }
