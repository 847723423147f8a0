package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/trafficsim/internal/monitoring"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[monitor] failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusBadRequest, msg)
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusNotFound, msg)
}

func internalError(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusInternalServerError, msg)
}
