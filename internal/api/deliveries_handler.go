package api

import (
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/db"
)

// DeliveriesHandler exposes the append-only delivery log.
type DeliveriesHandler struct {
	pool *pgxpool.Pool
}

// NewDeliveriesHandler creates a new DeliveriesHandler instance.
func NewDeliveriesHandler(pool *pgxpool.Pool) *DeliveriesHandler {
	return &DeliveriesHandler{pool: pool}
}

// List returns delivery records, newest first.
func (h *DeliveriesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimitParam(r, 100)

	records, err := db.ListDeliveryRecords(ctx, h.pool, limit)
	if err != nil {
		log.Printf("DeliveriesHandler: Failed to list delivery records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}
