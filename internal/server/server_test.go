package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledgerlens/internal/analysis"
	"github.com/mbd888/ledgerlens/internal/config"
	"github.com/mbd888/ledgerlens/internal/ledger"
	"github.com/mbd888/ledgerlens/internal/realtime"
	"github.com/mbd888/ledgerlens/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// pingSource is a memory ledger that also answers health pings.
type pingSource struct {
	*ledger.MemorySource
	err error
}

func (p pingSource) Ping(context.Context) error { return p.err }

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		LogFormat:       "json",
		LedgerRPCURL:    "http://127.0.0.1:1",
		AnalysisTimeout: time.Minute,
	}
}

// fixtureSource has a seed paying one established counterparty.
func fixtureSource() (*ledger.MemorySource, string, string) {
	src := ledger.NewMemorySource()
	seed, peer := testutil.Address(1), testutil.Address(2)
	src.AddAccount(seed, 60_000_000)
	src.AddAccount(peer, 60_000_000)
	src.AddTransaction(testutil.Payment(seed, peer, 100, 0))
	return src, seed, peer
}

// newTestServer creates a server over src with a quiet logger
func newTestServer(t *testing.T, cfg *config.Config, src ledger.Source) *Server {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, WithSource(src), WithLogger(quiet))
	require.NoError(t, err)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func postJSON(s *Server, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAnalyze_Success(t *testing.T) {
	src, seed, peer := fixtureSource()
	s := newTestServer(t, testConfig(), src)

	w := postJSON(s, "/v1/analyses", AnalyzeRequest{Address: seed, MaxDepth: 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep analysis.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, analysis.StateComplete, rep.State)
	assert.Equal(t, seed, rep.SeedID)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, rep.RunID, w.Header().Get("X-Run-ID"))
	require.Len(t, rep.Nodes, 2)
	assert.Equal(t, peer, rep.Nodes[1].ID)
	assert.Len(t, rep.Edges, 1)
	assert.NotEmpty(t, rep.Findings)
}

func TestAnalyze_InvalidAddress(t *testing.T) {
	src, _, _ := fixtureSource()
	s := newTestServer(t, testConfig(), src)

	w := postJSON(s, "/v1/analyses", AnalyzeRequest{Address: "rNotAnAddress"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_address", resp.Error)
}

func TestAnalyze_BadRequests(t *testing.T) {
	src, seed, _ := fixtureSource()
	s := newTestServer(t, testConfig(), src)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader("{not json"))
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(s, "/v1/analyses", AnalyzeRequest{Address: seed, MaxDepth: MaxRequestDepth + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Error)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "maxDepth", resp.Fields[0].Field)

	w = postJSON(s, "/v1/analyses", AnalyzeRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyze_LedgerUnavailable(t *testing.T) {
	src, seed, _ := fixtureSource()
	src.Fail(seed, fmt.Errorf("%w: connection refused", ledger.ErrNetwork))
	s := newTestServer(t, testConfig(), src)

	w := postJSON(s, "/v1/analyses", AnalyzeRequest{Address: seed})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ledger_unavailable", resp.Error)
	assert.NotEmpty(t, resp.RunID)
}

func TestAnalyze_RateLimited(t *testing.T) {
	src, seed, _ := fixtureSource()
	cfg := testConfig()
	cfg.RateLimitRPM = 1
	cfg.RateBurst = 1
	s := newTestServer(t, cfg, src)

	assert.Equal(t, http.StatusOK, postJSON(s, "/v1/analyses", AnalyzeRequest{Address: seed}).Code)
	assert.Equal(t, http.StatusTooManyRequests, postJSON(s, "/v1/analyses", AnalyzeRequest{Address: seed}).Code)
	// Health is not throttled.
	assert.Equal(t, http.StatusOK, get(s, "/health/live").Code)
}

func TestAccountRisk(t *testing.T) {
	src, seed, _ := fixtureSource()
	s := newTestServer(t, testConfig(), src)

	w := get(s, "/v1/accounts/"+seed+"/risk")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var a analysis.AccountAssessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, seed, a.Address)
	assert.GreaterOrEqual(t, a.Score.Immediate, 0.0)
	assert.LessOrEqual(t, a.Score.Immediate, 1.0)
	assert.Equal(t, 1, a.Interaction.Payments)
}

func TestAccountRisk_Errors(t *testing.T) {
	src, seed, _ := fixtureSource()
	src.Fail(seed, ledger.ErrNetwork)
	s := newTestServer(t, testConfig(), src)

	assert.Equal(t, http.StatusBadRequest, get(s, "/v1/accounts/bogus/risk").Code)
	assert.Equal(t, http.StatusBadGateway, get(s, "/v1/accounts/"+seed+"/risk").Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
		name string
	}{
		{fmt.Errorf("wrap: %w", analysis.ErrInvalidAddress), http.StatusBadRequest, "invalid_address"},
		{fmt.Errorf("wrap: %w", analysis.ErrLedgerUnavailable), http.StatusBadGateway, "ledger_unavailable"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "analysis_timeout"},
		{context.Canceled, 499, "client_closed_request"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		code, name := statusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.name, name, tt.err.Error())
	}
}

func TestHealthEndpoints(t *testing.T) {
	src, _, _ := fixtureSource()
	s := newTestServer(t, testConfig(), pingSource{MemorySource: src})

	w := get(s, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "ledger", resp.Checks[0].Name)

	assert.Equal(t, http.StatusOK, get(s, "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(s, "/health/ready").Code, "not ready before Run")
	assert.Equal(t, http.StatusOK, get(s, "/metrics").Code)
}

func TestHealth_LedgerDown(t *testing.T) {
	src, _, _ := fixtureSource()
	s := newTestServer(t, testConfig(), pingSource{MemorySource: src, err: ledger.ErrNetwork})

	w := get(s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMiddleware_HeadersAndCORS(t *testing.T) {
	src, _, _ := fixtureSource()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(testConfig(), WithSource(src), WithLogger(quiet), WithAllowedOrigins("https://app.example"))
	require.NoError(t, err)
	defer s.rateLimiter.Stop()

	w := get(s, "/health/live")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodOptions, "/v1/analyses", nil)
	req.Header.Set("Origin", "https://app.example")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/analyses", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagates(t *testing.T) {
	src, _, _ := fixtureSource()
	s := newTestServer(t, testConfig(), src)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestAnalyze_StreamsProgress(t *testing.T) {
	src, seed, _ := fixtureSource()
	s := newTestServer(t, testConfig(), src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(realtime.Subscription{Accounts: []string{seed}, EventTypes: []realtime.EventType{realtime.EventComplete}}))
	time.Sleep(100 * time.Millisecond)

	w := postJSON(s, "/v1/analyses", AnalyzeRequest{Address: seed})
	require.Equal(t, http.StatusOK, w.Code)
	runID := w.Header().Get("X-Run-ID")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, realtime.EventComplete, ev.Type)
	assert.Equal(t, runID, ev.RunID)
}
