package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

func TestWriteReasonError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteReasonError(w, http.StatusForbidden, errors.New("denied"), "CrossTenantAccess", map[string]string{"organization_id": "org2"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ErrorResponse{Error: "denied", Reason: "CrossTenantAccess", Details: map[string]string{"organization_id": "org2"}}, body)
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "who") }, http.StatusUnauthorized},
		{"success", func(w http.ResponseWriter) { WriteSuccess(w, []int{1}) }, http.StatusOK},
		{"no content", WriteNoContent, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestWriteBadRequest_Reason(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "limit must be positive")

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ReasonInvalidArgument, body.Reason)
	assert.Equal(t, "limit must be positive", body.Error)
}

func TestWriteJSON_Unencodable(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, http.StatusOK, map[string]any{"ch": make(chan int)})

	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestParseJSON(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Main"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "Main", dest.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Main","extra":1}`))
	assert.Error(t, ParseJSON(r, &dest))

	w := httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.False(t, ParseJSONOrError(w, r, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"} {"name":"b"}`))
	assert.ErrorContains(t, ParseJSON(r, &dest), "unexpected data")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.EqualError(t, ParseJSON(r, &dest), "request body is empty")
}

func TestParseQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&start=2026-03-01T12:00:00%2B02:00&bad=yesterday&format=csv", nil)

	limit, err := ParseQueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	limit, err = ParseQueryInt(r, "missing", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)

	start, err := ParseQueryTime(r, "start")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), start)

	_, err = ParseQueryTime(r, "bad")
	assert.Error(t, err)

	end, err := ParseQueryTime(r, "end")
	require.NoError(t, err)
	assert.True(t, end.IsZero())

	assert.Equal(t, "csv", ParseQueryString(r, "format", "json"))
	assert.Equal(t, "json", ParseQueryString(r, "other", "json"))
}

func TestPathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/v1/orgs/{org_id}", func(w http.ResponseWriter, r *http.Request) {
		got = PathString(r, "org_id")
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orgs/org1", nil))
	assert.Equal(t, "org1", got)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, "req-1", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.Len(t, seen, 36)
}

func TestRecoveryAndLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	handler := Chain(
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/explode", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var panicLine, requestLine map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &panicLine))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &requestLine))
	assert.Equal(t, "Panic in HTTP handler", panicLine["msg"])
	assert.Equal(t, "boom", panicLine["panic"])
	assert.Equal(t, "HTTP request", requestLine["msg"])
	assert.Equal(t, float64(http.StatusInternalServerError), requestLine["status"])
	assert.NotEmpty(t, requestLine["request_id"])
}

func TestContentTypeMiddleware(t *testing.T) {
	handler := ContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusAccepted, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusAccepted, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMaxBytesMiddleware(t *testing.T) {
	handler := MaxBytesMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v any
		if err := ParseJSON(r, &v); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		WriteNoContent(w)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"too long"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds 4 bytes")
}
