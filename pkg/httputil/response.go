package httputil

import (
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json"

// Reasons attached by the generic helpers
const (
	ReasonInvalidArgument = "InvalidArgument"
	ReasonUnauthenticated = "Unauthenticated"
	ReasonInternal        = "Internal"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string            `json:"error"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON encodes data before touching the response so an unencodable
// value still produces a clean 500
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

func writeFailure(w http.ResponseWriter, status int, reason, message string, details map[string]string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Reason: reason, Details: details})
}

// WriteReasonError writes an error response carrying a machine readable reason
func WriteReasonError(w http.ResponseWriter, status int, err error, reason string, details map[string]string) {
	writeFailure(w, status, reason, err.Error(), details)
}

// WriteBadRequest answers 400 InvalidArgument
func WriteBadRequest(w http.ResponseWriter, message string) {
	writeFailure(w, http.StatusBadRequest, ReasonInvalidArgument, message, nil)
}

// WriteUnauthorized answers 401 Unauthenticated
func WriteUnauthorized(w http.ResponseWriter, message string) {
	writeFailure(w, http.StatusUnauthorized, ReasonUnauthenticated, message, nil)
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
