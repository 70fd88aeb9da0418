package server

import (
	"encoding/json"
	"net/http"
)

// apiResponse is the REST envelope: status plus a human message, with the
// payload under "data" on success and "errors" otherwise.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, apiResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, message string, errs any) {
	writeJSON(w, statusCode, apiResponse{Status: "error", Message: message, Errors: errs})
}
