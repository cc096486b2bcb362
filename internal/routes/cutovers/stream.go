package cutovers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
	"github.com/Project-Sylos/Sylos-Cutover/internal/routes/httputil"
)

func (h handler) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		httputil.WriteError(h.logger, w, http.StatusBadRequest, "run id is required")
		return
	}

	updates, cancel, err := h.core.SubscribeProgress(r.Context(), runID)
	if err != nil {
		if errors.Is(err, corebridge.ErrRunNotFound) {
			httputil.WriteRunError(h.logger, w, http.StatusNotFound, runID, "cutover run not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str("run_id", runID).
			Msg("failed to subscribe to cutover progress")
		httputil.WriteRunError(h.logger, w, http.StatusInternalServerError, runID, "failed to subscribe to cutover progress")
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	h.logger.Info().
		Str("run_id", runID).
		Msg("opening progress stream")

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info().
				Str("run_id", runID).
				Msg("client closed progress stream")
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case update, ok := <-updates:
			if !ok {
				fmt.Fprintf(w, "event: close\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			payload, err := json.Marshal(update)
			if err != nil {
				h.logger.Error().
					Err(err).
					Str("run_id", runID).
					Msg("failed to marshal progress event")
				continue
			}

			eventName := update.Event
			if eventName == "" {
				eventName = "message"
			}

			fmt.Fprintf(w, "event: %s\n", eventName)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
