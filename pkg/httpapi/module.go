package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Invoke(
		registerHealthEndpoints,
		registerMetricsEndpoint,
		registerRoutes,
	),
)

// Route is a plain HTTP endpoint mounted on the gateway mux.
type Route struct {
	Method  string
	Pattern string
	Handler runtime.HandlerFunc
}

// Routes is implemented by every service that exposes HTTP endpoints.
type Routes interface {
	Routes() []Route
}

// AsRoutes annotates a constructor so its result joins the "routes" group.
func AsRoutes(f any) any {
	return fx.Annotate(f, fx.As(new(Routes)), fx.ResultTags(`group:"routes"`))
}

type routeParams struct {
	fx.In
	Mux    *runtime.ServeMux
	Groups []Routes `group:"routes"`
}

func registerRoutes(p routeParams) error {
	for _, g := range p.Groups {
		if err := Register(p.Mux, g.Routes()...); err != nil {
			return err
		}
	}
	return nil
}

func Register(mux *runtime.ServeMux, routes ...Route) error {
	for _, r := range routes {
		if err := mux.HandlePath(r.Method, r.Pattern, r.Handler); err != nil {
			zap.L().Error("failed to register route", zap.String("method", r.Method), zap.String("pattern", r.Pattern), zap.Error(err))
			return err
		}
	}
	return nil
}

// Checker reports whether a dependency is usable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type healthParams struct {
	fx.In
	Mux      *runtime.ServeMux
	Checkers []Checker `group:"checkers"`
}

type dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func registerHealthEndpoints(p healthParams) error {
	return Register(p.Mux,
		Route{Method: http.MethodGet, Pattern: "/healthz", Handler: func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}},
		Route{Method: http.MethodGet, Pattern: "/readyz", Handler: Readiness(p.Checkers...)},
	)
}

// Readiness runs every checker with a short deadline and answers 503 when
// any of them fails.
func Readiness(checkers ...Checker) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		code := http.StatusOK
		deps := make([]dependency, 0, len(checkers))
		for _, c := range checkers {
			dep := dependency{Name: c.Name(), Status: "ok"}
			if err := c.Check(ctx); err != nil {
				dep.Status = "unavailable"
				dep.Message = err.Error()
				code = http.StatusServiceUnavailable
			}
			deps = append(deps, dep)
		}

		status := "ok"
		if code != http.StatusOK {
			status = "unavailable"
		}
		WriteJSON(w, code, map[string]any{"status": status, "deps": deps})
	}
}

func registerMetricsEndpoint(mux *runtime.ServeMux) error {
	handler := promhttp.Handler()
	return Register(mux, Route{Method: http.MethodGet, Pattern: "/metrics", Handler: func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		handler.ServeHTTP(w, r)
	}})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body of at most 64 KiB.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10)).Decode(v)
}
