package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "http status", err: &GatewayError{Op: "b2c", StatusCode: http.StatusBadRequest}, want: true},
		{name: "unauthorized", err: &GatewayError{Op: "b2c", StatusCode: http.StatusUnauthorized}, want: true},
		{name: "response code", err: &GatewayError{Op: "b2c", StatusCode: http.StatusOK, Err: fmt.Errorf("%w: response code \"1\"", ErrNotAccepted)}, want: true},
		{name: "token", err: &GatewayError{Op: "token", Err: errors.Join(ErrAuth, context.DeadlineExceeded)}, want: true},
		{name: "phone", err: ErrInvalidPhone, want: true},
		{name: "wrapped amount", err: fmt.Errorf("disburse: %w", ErrInvalidAmount), want: true},
		{name: "transport", err: &GatewayError{Op: "b2c", Err: context.DeadlineExceeded}, want: false},
		{name: "server error", err: &GatewayError{Op: "b2c", StatusCode: http.StatusInternalServerError}, want: false},
		{name: "unavailable", err: &GatewayError{Op: "b2c", StatusCode: http.StatusServiceUnavailable}, want: false},
		{name: "gateway timeout", err: &GatewayError{Op: "b2c", StatusCode: http.StatusGatewayTimeout}, want: false},
		{name: "malformed 200", err: &GatewayError{Op: "b2c", StatusCode: http.StatusOK, Err: errors.Join(ErrMalformedResponse, errors.New("invalid character '<'"))}, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRejected(tc.err))
		})
	}
}
