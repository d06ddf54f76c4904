package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// writeJSON encodes the response to a buffer first to prevent partial writes,
// then writes headers and body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
	}
}

// parseLimitParam parses the limit query parameter, returning defaultLimit when
// missing or invalid.
func parseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}
