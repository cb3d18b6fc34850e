package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestAuthEventAndPurged(t *testing.T) {
	m := New()
	m.AuthEvent(EventLogin, OutcomeFailure)
	m.AuthEvent(EventLogin, OutcomeFailure)
	m.AuthEvent(EventLogin, OutcomeSuccess)
	m.Purged(4)
	m.Purged(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthEventsTotal.WithLabelValues("login", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthEventsTotal.WithLabelValues("login", "success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ResetTokensPurged))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AuthEvent(EventLogin, OutcomeSuccess)
	m.Purged(3)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.AuthEvent(EventResetRequest, OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `dealerdesk_auth_events_total{event="reset_request",outcome="success"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
