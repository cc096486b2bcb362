package cutovers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Project-Sylos/Sylos-Cutover/internal/routes/middleware"
)

func (h handler) get(ctx *middleware.Context) {
	runID := chi.URLParam(ctx.Request(), "runID")
	if runID == "" {
		ctx.Error(http.StatusBadRequest, "run id is required", nil)
		return
	}
	ctx.SetRunID(runID)

	run, err := h.core.GetRun(ctx.Request().Context(), runID)
	if err != nil {
		h.fail(ctx, "failed to get cutover run", err)
		return
	}

	ctx.Response(http.StatusOK, run)
}

func (h handler) list(ctx *middleware.Context) {
	runs, err := h.core.ListRuns(ctx.Request().Context())
	if err != nil {
		h.fail(ctx, "failed to list cutover runs", err)
		return
	}

	ctx.Response(http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h handler) status(ctx *middleware.Context) {
	status, err := h.core.Status(ctx.Request().Context())
	if err != nil {
		h.fail(ctx, "failed to read cutover status", err)
		return
	}

	ctx.Response(http.StatusOK, status)
}

func (h handler) pointer(ctx *middleware.Context) {
	view, err := h.core.Pointer(ctx.Request().Context())
	if err != nil {
		h.fail(ctx, "failed to read pointer", err)
		return
	}

	ctx.Response(http.StatusOK, view)
}

func (h handler) plan(ctx *middleware.Context) {
	plan, err := h.core.Plan(ctx.Request().Context())
	if err != nil {
		h.fail(ctx, "failed to build cutover plan", err)
		return
	}

	ctx.Response(http.StatusOK, plan)
}
