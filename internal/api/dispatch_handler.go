package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/dispatch"
)

// DispatchHandler exposes the on-demand dispatch trigger. It shares the
// Dispatcher (and thus the atomic claim primitive) with the periodic trigger,
// so the two cannot double-claim items.
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewDispatchHandler creates a new DispatchHandler instance.
func NewDispatchHandler(dispatcher *dispatch.Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// Trigger runs one dispatch cycle and returns its summary. A cycle that does
// nothing because the global cap is reached is a 200, not an error.
func (h *DispatchHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.RunDispatchCycle(r.Context())
	if err != nil {
		log.Printf("DispatchHandler: Cycle failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TriggerItem dispatches a single queue item by ID.
func (h *DispatchHandler) TriggerItem(w http.ResponseWriter, r *http.Request, itemID string) {
	err := h.dispatcher.DispatchItem(r.Context(), itemID)
	if errors.Is(err, db.ErrQueueItemNotFound) {
		http.Error(w, "Queue item not found or not pending", http.StatusNotFound)
		return
	}
	if err != nil {
		// The item has been marked errored; report the outcome, not a 500.
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
