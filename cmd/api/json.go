package main

import (
	"encoding/json"
	"net/http"

	"github.com/farxc/rcs-reporting/internal/response"
)

// maxBodyBytes bounds request bodies; a full report with all sections fits
// comfortably.
const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, &response.ErrorResponse{Error: message})
}

// readJSON decodes the body into data. It writes nothing; the caller
// answers a decode error.
func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(data)
}
