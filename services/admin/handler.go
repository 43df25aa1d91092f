package admin

import (
	"net/http"

	"referralpay/pkg/db/pagination"
	"referralpay/pkg/errutil"
	"referralpay/pkg/httpapi"
	"referralpay/pkg/middleware"
	"referralpay/services/ledger"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/shopspring/decimal"
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
		{Method: http.MethodGet, Pattern: "/v1/admin/withdrawals", Handler: wrap(h.listWithdrawals)},
		{Method: http.MethodPost, Pattern: "/v1/admin/withdrawals/{id}:approve", Handler: wrap(h.approve)},
		{Method: http.MethodPost, Pattern: "/v1/admin/withdrawals/{id}:suspend", Handler: wrap(h.suspend)},
		{Method: http.MethodPost, Pattern: "/v1/admin/withdrawals:approve-all", Handler: wrap(h.approveAll)},
		{Method: http.MethodPut, Pattern: "/v1/admin/settings/initial-deposit", Handler: wrap(h.setInitialDeposit)},
		{Method: http.MethodGet, Pattern: "/v1/admin/users", Handler: wrap(h.listUsers)},
	}
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	rows, info, err := h.svc.ListWithdrawals(r.Context(), ledger.WithdrawalStatus(q.Get("status")), pagination.FromQuery(q))
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"withdrawals": rows, "page_info": info})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request, params map[string]string) {
	wd, err := h.svc.Approve(r.Context(), params["id"])
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, wd)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.svc.Suspend(r.Context(), params["id"]); err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approveAll(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	results, err := h.svc.ApproveAll(r.Context())
	if err != nil && results == nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) setInitialDeposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		errutil.WriteHTTP(w, errutil.BadRequest("invalid request body", err))
		return
	}
	if err := h.svc.SetInitialDeposit(r.Context(), req.Amount); err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rows, info, err := h.svc.ListUsers(r.Context(), pagination.FromQuery(r.URL.Query()))
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"users": rows, "page_info": info})
}
