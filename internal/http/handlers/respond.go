package handlers

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes v as the JSON response body
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// statusResponse is the envelope of the /otp endpoints
type statusResponse struct {
	Status      bool        `json:"status"`
	Message     string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	AccessToken interface{} `json:"access_token,omitempty"`
}

func respondInternalError(w http.ResponseWriter) {
	respondJSON(w, http.StatusInternalServerError, statusResponse{Status: false, Error: "internal error"})
}
