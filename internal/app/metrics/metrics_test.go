package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                             "/",
		"/":                            "/",
		"/healthz":                     "/healthz",
		"/api/v1/generate":             "/api/v1/generate",
		"/api/v1/checkout/3f1c-uuid":   "/api/v1/checkout/:id",
		"/api/v1/checkout/return":      "/api/v1/checkout/return",
		"/api/v1/admin/analytics/live": "/api/v1/admin/analytics",
		"/api/v1/admin/settings/":      "/api/v1/admin/settings",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestInstrumentHandlerExposesRequestCount(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	RecordGeneration("trial")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `clicklone_http_requests_total{method="GET",path="/healthz",status="418"}`))
	assert.True(t, strings.Contains(body, `clicklone_funnel_generations_total{decision="trial"}`))
}
