package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	// Gauges are exported with a zero value before any observation.
	for _, name := range []string{
		"ledgerlens_active_analyses",
		"ledgerlens_active_websocket_clients",
	} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}

	AnalysisRunsTotal.WithLabelValues("complete").Inc()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "ledgerlens_analysis_runs_total") {
		t.Error("Expected ledgerlens_analysis_runs_total after incrementing")
	}
}

func TestLedgerRequestsCounter(t *testing.T) {
	before := testutil.ToFloat64(LedgerRequestsTotal.WithLabelValues("account_info", "ok"))
	LedgerRequestsTotal.WithLabelValues("account_info", "ok").Inc()
	after := testutil.ToFloat64(LedgerRequestsTotal.WithLabelValues("account_info", "ok"))
	if after-before != 1 {
		t.Fatalf("expected counter to advance by 1, got %v", after-before)
	}
}

func TestMiddleware_RecordsMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/test", "2xx"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/test", "2xx"))
	if after-before != 1 {
		t.Errorf("expected one recorded request, got %v", after-before)
	}
}
