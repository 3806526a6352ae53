package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// ParseJSON decodes a single JSON document from the request body. Unknown
// fields, trailing data and oversized bodies are rejected.
func ParseJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dest)
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case err != nil:
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after document")
	}
	return nil
}

// ParseJSONOrError decodes the body into dest and answers 400 on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// PathString returns the named route variable, empty when absent
func PathString(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

func queryValue(r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	return v, v != ""
}

// ParseQueryInt parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s: %q is not an integer", key, raw)
	}
	return n, nil
}

// ParseQueryTime parses an RFC 3339 query parameter into UTC. Absent
// parameters yield the zero time.
func ParseQueryTime(r *http.Request, key string) (time.Time, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("query parameter %s: %q is not an RFC 3339 timestamp", key, raw)
	}
	return ts.UTC(), nil
}

func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if raw, ok := queryValue(r, key); ok {
		return raw
	}
	return defaultVal
}
