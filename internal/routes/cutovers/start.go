package cutovers

import (
	"net/http"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
	"github.com/Project-Sylos/Sylos-Cutover/internal/routes/middleware"
)

func (h handler) start(ctx *middleware.Context) {
	run, err := h.core.StartCutover(ctx.Request().Context())
	if err != nil {
		h.fail(ctx, "failed to start cutover", err)
		return
	}
	ctx.SetRunID(run.ID)

	ctx.Response(http.StatusAccepted, run)
}

func (h handler) reverse(ctx *middleware.Context, payload corebridge.ReverseRequest) {
	if payload.RunID != "" {
		ctx.SetRunID(payload.RunID)
	}
	run, err := h.core.StartReverse(ctx.Request().Context(), payload)
	if err != nil {
		h.fail(ctx, "failed to reverse cutover", err)
		return
	}
	ctx.SetRunID(run.ID)

	ctx.Response(http.StatusAccepted, run)
}
