package api

import (
	"encoding/json"
	"net/http"
)

// Response is the JSON envelope used for every generated error body
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendError sends an error JSON response
func SendError(w http.ResponseWriter, statusCode int, errorMsg string, message string) {
	respond(w, statusCode, Response{
		Success: false,
		Message: message,
		Error:   errorMsg,
	})
}

// SendNotFound sends a 404 Not Found response
func SendNotFound(w http.ResponseWriter, resource string) {
	SendError(w, http.StatusNotFound, "Resource not found", resource+" not found")
}

// SendForbidden sends a 403 Forbidden response
func SendForbidden(w http.ResponseWriter) {
	SendError(w, http.StatusForbidden, "Access denied",
		"You don't have permission to access this resource")
}

// SendInternalServerError sends a 500 Internal Server Error response.
// The cause is logged by the caller, never echoed to the client.
func SendInternalServerError(w http.ResponseWriter) {
	SendError(w, http.StatusInternalServerError,
		"An internal server error occurred",
		"Something went wrong. Please try again later.")
}

// respond is a helper function to send JSON responses
func respond(w http.ResponseWriter, statusCode int, data interface{}) {
	h := w.Header()
	// A failed file response may have left these behind
	h.Del("Content-Length")
	h.Del("Content-Encoding")
	h.Del("Last-Modified")
	h.Del("Etag")
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	if data != nil {
		// Headers are already out; an encode error can only be a broken connection
		_ = json.NewEncoder(w).Encode(data)
	}
}
