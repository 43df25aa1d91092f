package payment

import (
	"net/http"

	"referralpay/pkg/db/pagination"
	"referralpay/pkg/errutil"
	"referralpay/pkg/httpapi"
	"referralpay/pkg/middleware"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

type Handler struct {
	svc  *Service
	auth *middleware.Authenticator
}

func NewHandler(svc *Service, a *middleware.Authenticator) *Handler {
	return &Handler{svc: svc, auth: a}
}

func (h *Handler) Routes() []httpapi.Route {
	wrap := func(f runtime.HandlerFunc) runtime.HandlerFunc {
		return middleware.Recover(h.auth.Wrap(f))
	}
	return []httpapi.Route{
		{Method: http.MethodPost, Pattern: "/v1/deposits", Handler: wrap(h.deposit)},
		{Method: http.MethodGet, Pattern: "/v1/deposits/{merchant_request_id}", Handler: wrap(h.depositStatus)},
		{Method: http.MethodPost, Pattern: "/v1/withdrawals", Handler: wrap(h.requestWithdrawal)},
		{Method: http.MethodGet, Pattern: "/v1/withdrawals", Handler: wrap(h.listWithdrawals)},
	}
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req DepositRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		errutil.WriteHTTP(w, errutil.BadRequest("invalid request body", err))
		return
	}
	txn, err := h.svc.Deposit(r.Context(), req)
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, txn)
}

func (h *Handler) depositStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
	txn, err := h.svc.DepositStatus(r.Context(), params["merchant_request_id"])
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, txn)
}

func (h *Handler) requestWithdrawal(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req WithdrawalRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		errutil.WriteHTTP(w, errutil.BadRequest("invalid request body", err))
		return
	}
	wd, err := h.svc.RequestWithdrawal(r.Context(), req)
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, wd)
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rows, info, err := h.svc.ListWithdrawals(r.Context(), pagination.FromQuery(r.URL.Query()))
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"withdrawals": rows, "page_info": info})
}
