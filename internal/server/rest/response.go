package rest

import (
	"encoding/json"
	"net/http"
)

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	writeJSON(w, apiErr.Status, errorEnvelope{Error: apiErr})
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, data)
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
