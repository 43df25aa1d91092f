package intake

import (
	"context"
	"errors"
	"io"
	"net/http"

	"referralpay/pkg/config"
	"referralpay/pkg/errutil"
	"referralpay/pkg/httpapi"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

type acceptor interface {
	Accept(ctx context.Context, kind Kind, raw []byte) (string, error)
}

// Handler exposes the provider webhooks. The provider only needs to know
// whether to resend, so responses are minimal.
type Handler struct {
	svc     acceptor
	maxBody int64
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return newHandler(svc, cfg.Intake.MaxBodyBytes)
}

func newHandler(svc acceptor, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{svc: svc, maxBody: maxBody}
}

func (h *Handler) Routes() []httpapi.Route {
	routes := make([]httpapi.Route, 0, 12)
	for pattern, kind := range map[string]Kind{
		"/callbacks/mpesa/stk":         KindDepositResult,
		"/callbacks/mpesa/b2c/result":  KindDisbursementResult,
		"/callbacks/mpesa/b2c/timeout": KindDisbursementTimeout,
	} {
		routes = append(routes, httpapi.Route{Method: http.MethodPost, Pattern: pattern, Handler: h.Serve(kind)})
		for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			routes = append(routes, httpapi.Route{Method: m, Pattern: pattern, Handler: methodNotAllowed})
		}
	}
	return routes
}

func (h *Handler) Serve(kind Kind) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, nil)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				errutil.WriteHTTP(w, errutil.New(errutil.StatusPayloadTooLarge, "callback body too large"))
				return
			}
			errutil.WriteHTTP(w, errutil.BadRequest("failed to read callback body", err))
			return
		}

		if _, err := h.svc.Accept(r.Context(), kind, raw); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				errutil.WriteHTTP(w, errutil.BadRequest("malformed callback payload", err))
				return
			}
			zap.L().Error("[Intake] failed to persist callback", zap.String("kind", string(kind)), zap.Error(err))
			errutil.WriteHTTP(w, errutil.ServiceUnavailable("callback not stored, retry later", err))
			return
		}

		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
	}
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	w.Header().Set("Allow", http.MethodPost)
	errutil.WriteHTTP(w, errutil.New(errutil.StatusMethodNotAllowed, "method not allowed"))
}
