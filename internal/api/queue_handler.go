package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailwise/mailwise/internal/db"
	"github.com/mailwise/mailwise/internal/models"
)

// QueueHandler handles outbound queue API requests.
type QueueHandler struct {
	pool *pgxpool.Pool
}

// NewQueueHandler creates a new QueueHandler instance.
func NewQueueHandler(pool *pgxpool.Pool) *QueueHandler {
	return &QueueHandler{pool: pool}
}

// ImportRequest is the payload of a queue import: parsed recipient rows from
// the import collaborator.
type ImportRequest struct {
	Recipients []ImportRecipient `json:"recipients"`
}

// ImportRecipient is one recipient row with its rendering payload.
type ImportRecipient struct {
	Email  string        `json:"email"`
	Person models.Person `json:"person"`
}

// ImportResponse reports how many rows were enqueued vs. already present.
type ImportResponse struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Import enqueues each recipient that is not already queued. Importing the same
// set twice inserts nothing the second time.
func (h *QueueHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var response ImportResponse
	for _, recipient := range req.Recipients {
		if recipient.Email == "" {
			response.Skipped++
			continue
		}

		inserted, err := db.EnqueueIfNew(ctx, h.pool, recipient.Email, recipient.Person)
		if err != nil {
			log.Printf("QueueHandler: Failed to enqueue %s: %v", recipient.Email, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		response.Inserted += inserted
		if inserted == 0 {
			response.Skipped++
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// List returns queue items plus per-state counts.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimitParam(r, 100)

	items, err := db.ListQueueItems(ctx, h.pool, limit)
	if err != nil {
		log.Printf("QueueHandler: Failed to list queue items: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	counts, err := db.CountQueueByStatus(ctx, h.pool)
	if err != nil {
		log.Printf("QueueHandler: Failed to count queue items: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"counts": counts,
	})
}
