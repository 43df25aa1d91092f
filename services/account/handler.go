package account

import (
	"net/http"

	"referralpay/pkg/errutil"
	"referralpay/pkg/httpapi"
	"referralpay/pkg/middleware"
)

type Handler struct {
	svc  *Service
	auth *middleware.Authenticator
}

func NewHandler(svc *Service, a *middleware.Authenticator) *Handler {
	return &Handler{svc: svc, auth: a}
}

func (h *Handler) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodPost, Pattern: "/v1/auth/register", Handler: middleware.Recover(h.register)},
		{Method: http.MethodPost, Pattern: "/v1/auth/login", Handler: middleware.Recover(h.login)},
		{Method: http.MethodGet, Pattern: "/v1/me", Handler: middleware.Recover(h.auth.Wrap(h.me))},
		{Method: http.MethodGet, Pattern: "/v1/referrals", Handler: middleware.Recover(h.auth.Wrap(h.referrals))},
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req RegisterRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		errutil.WriteHTTP(w, errutil.BadRequest("invalid request body", err))
		return
	}
	if req.Ref == "" {
		req.Ref = r.URL.Query().Get("ref")
	}

	user, err := h.svc.Register(r.Context(), req)
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req LoginRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		errutil.WriteHTTP(w, errutil.BadRequest("invalid request body", err))
		return
	}

	token, user, err := h.svc.Login(r.Context(), req)
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	user, err := h.svc.Profile(r.Context())
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) referrals(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	rows, err := h.svc.Referrals(r.Context())
	if err != nil {
		errutil.WriteHTTP(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"referrals": rows})
}
