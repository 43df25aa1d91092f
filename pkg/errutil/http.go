package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// WriteHTTP renders err as the JSON error envelope. Errors that are not a
// BaseError are reported as internal without leaking their text.
func WriteHTTP(w http.ResponseWriter, err error) {
	be, ok := As(err)
	if !ok {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			be = BaseError{Code: StatusGatewayTimeout, Message: "request timed out"}
		case errors.Is(err, context.Canceled):
			be = BaseError{Code: StatusClientClosedRequest, Message: "request canceled"}
		default:
			be = BaseError{Code: StatusInternal, Message: "internal error"}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(be.Code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    be.Code,
			"message": be.Message,
			"details": be.Details,
		},
	})
}
