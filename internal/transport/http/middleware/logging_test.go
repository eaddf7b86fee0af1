package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger_LevelsByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		base := slog.New(slog.NewJSONHandler(&buf, nil))

		h := middleware.RequestID(WithRequestLogger(base)(RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/room/ttl?roomId=abc", nil))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
		require.Equal(t, tc.level, line["level"])
		require.Equal(t, "http_request", line["msg"])
		require.EqualValues(t, tc.status, line["status"])
		require.Equal(t, "/room/ttl", line["path"])
		require.Equal(t, "roomId=abc", line["query"])
		require.NotEmpty(t, line["req_id"])
	}
}

func TestL_FallsBackToDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Same(t, slog.Default(), L(r.Context()))
}
