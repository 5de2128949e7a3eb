package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger_LogsStatusAndInjectsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLoggerSet bool
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(logger))
	r.Post("/setup", func(w http.ResponseWriter, r *http.Request) {
		ctxLoggerSet = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/setup", nil))

	assert.True(t, ctxLoggerSet)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/setup", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.NotEmpty(t, line["request_id"])
}

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/*", "2xx"))

	for _, path := range []string{"/", "/index.html", "/anything/else"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/*", "2xx"))
	assert.Equal(t, before+3, after)
}

func TestMetrics_StatusClassAndUnmatchedRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Post("/setup", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	before5xx := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/setup", "5xx"))
	beforeUnmatched := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "unmatched", "4xx"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/setup", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/random/path", nil))

	assert.Equal(t, before5xx+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/setup", "5xx")))
	assert.Equal(t, beforeUnmatched+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "unmatched", "4xx")))
}

func TestRequestLogger_AnnotationsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Post("/setup", func(w http.ResponseWriter, r *http.Request) {
		Annotate(r.Context(), "setup_id", "run-1")
		Annotate(r.Context(), "setup_outcome", "partial")
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/setup", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "run-1", line["setup_id"])
	assert.Equal(t, "partial", line["setup_outcome"])
}

func TestAnnotate_OutsideRequestLoggerIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { Annotate(context.Background(), "setup_id", "x") })
}
