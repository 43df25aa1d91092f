package reconciler

import (
	"referralpay/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciler",
	fx.Provide(
		New,
		NewHandler,
		NewSweeper,
	),
	fx.Invoke(
		registerHandlers,
		StartSweeper,
	),
)

func registerHandlers(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(taskname.CallbackReconcile, h.HandleReconcileTask)
}
