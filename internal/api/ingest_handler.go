package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/ingest"
)

// IngestHandler exposes the on-demand inbox ingestion trigger and the
// received-mail listing.
type IngestHandler struct {
	pool     *pgxpool.Pool
	ingestor *ingest.Ingestor
}

// NewIngestHandler creates a new IngestHandler instance.
func NewIngestHandler(pool *pgxpool.Pool, ingestor *ingest.Ingestor) *IngestHandler {
	return &IngestHandler{
		pool:     pool,
		ingestor: ingestor,
	}
}

// Trigger runs one ingestion pass over all active accounts with inbound
// credentials. Per-account failures are summarized, not fatal.
func (h *IngestHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ingestor.FetchAllInboxes(r.Context())
	if err != nil {
		log.Printf("IngestHandler: Ingestion failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListReceived returns ingested messages for one account, newest first.
// The account ID comes from /api/v1/received/{account_id}.
func (h *IngestHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/received/"), "/")
	if accountID == "" {
		http.Error(w, "account ID is required", http.StatusBadRequest)
		return
	}

	limit := parseLimitParam(r, 100)

	messages, err := db.ListReceivedMessages(ctx, h.pool, accountID, limit)
	if err != nil {
		log.Printf("IngestHandler: Failed to list received messages: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
