package main

import (
	"encoding/json"
	"net/http"

	"github.com/ymiah/passportpro/internal/pipeline"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// sessionPipeline resolves the session query parameter to its pipeline,
// writing the error response itself when the session is missing or unknown.
func sessionPipeline(w http.ResponseWriter, r *http.Request) *pipeline.Pipeline {
	id := r.URL.Query().Get("session")
	if id == "" {
		httpError(w, http.StatusBadRequest, "missing session parameter")
		return nil
	}
	pipe := sessions.Get(id)
	if pipe == nil {
		httpError(w, http.StatusNotFound, "unknown or expired session")
		return nil
	}
	return pipe
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}
