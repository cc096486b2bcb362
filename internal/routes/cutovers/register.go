package cutovers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
	"github.com/Project-Sylos/Sylos-Cutover/internal/cutover"
	"github.com/Project-Sylos/Sylos-Cutover/internal/pointer"
	"github.com/Project-Sylos/Sylos-Cutover/internal/routes/middleware"
)

type handler struct {
	logger zerolog.Logger
	core   corebridge.Bridge
}

// Register mounts cutover orchestration endpoints.
func Register(router chi.Router, logger zerolog.Logger, core corebridge.Bridge, mw *middleware.Middleware) {
	h := handler{
		logger: logger,
		core:   core,
	}

	router.Post("/cutovers", middleware.NoBody(mw, h.start))
	router.Post("/cutovers/reverse", middleware.JSON(mw, h.reverse))
	router.Get("/cutovers", middleware.NoBody(mw, h.list))
	router.Get("/cutovers/plan", middleware.NoBody(mw, h.plan))
	router.Get("/cutovers/status", middleware.NoBody(mw, h.status))
	router.Get("/cutovers/{runID}", middleware.NoBody(mw, h.get))
	router.Get("/cutovers/{runID}/stream", h.handleStream)
	router.Get("/pointer", middleware.NoBody(mw, h.pointer))
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	var (
		cfgErr *cutover.ConfigurationError
		envErr *cutover.EnvironmentError
	)
	switch {
	case errors.Is(err, cutover.ErrCutoverInProgress),
		errors.Is(err, corebridge.ErrNothingToReverse),
		errors.Is(err, corebridge.ErrPointerStranded),
		errors.Is(err, pointer.ErrPointerCollision),
		errors.Is(err, pointer.ErrPointerUnset):
		return http.StatusConflict
	case errors.Is(err, corebridge.ErrRunNotFound):
		return http.StatusNotFound
	case errors.As(err, &cfgErr), errors.As(err, &envErr), errors.Is(err, cutover.ErrNoTables):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h handler) fail(ctx *middleware.Context, fallback string, err error) {
	status := errorStatus(err)
	message := fallback
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	ctx.Error(status, message, err)
}
