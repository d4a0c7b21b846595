package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sozercan/patentgpt/apimodels"
	"github.com/sozercan/patentgpt/internal/analyzer"
	"github.com/sozercan/patentgpt/internal/config"
	"github.com/sozercan/patentgpt/internal/llm"
	"github.com/sozercan/patentgpt/internal/tools"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	requests []apimodels.AnalysisRequest
	resp     *apimodels.AnalysisResponse
	err      error
	panicked bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req apimodels.AnalysisRequest) (*apimodels.AnalysisResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.panicked {
		f.panicked = false
		panic("analyzer exploded")
	}
	return f.resp, f.err
}

func testConfig() config.Config {
	return config.Config{
		Server:    config.ServerConfig{Port: "3000"},
		RateLimit: config.RateLimitConfig{Requests: 100, Window: 15 * time.Minute},
		OpenAI:    config.OpenAIConfig{Model: "gpt-4o"},
		Analysis:  config.AnalysisConfig{MaxSteps: 5},
	}
}

func okResponse() *apimodels.AnalysisResponse {
	return &apimodels.AnalysisResponse{Text: "ok", Steps: []apimodels.StepRecord{}}
}

func do(t *testing.T, h http.Handler, method, target, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apimodels.ErrorBody {
	t.Helper()
	var env apimodels.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}

func TestHealth(t *testing.T) {
	fa := &fakeAnalyzer{}
	h := New(testConfig(), fa).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, fa.requests)
}

func TestAnalyzeMissingQuery(t *testing.T) {
	for _, target := range []string{"/api/analyze", "/api/analyze?query=", "/api/analyze?model=gpt-4o"} {
		t.Run(target, func(t *testing.T) {
			fa := &fakeAnalyzer{resp: okResponse()}
			h := New(testConfig(), fa).Handler()

			rec := do(t, h, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apimodels.ErrorBody{
				Code:    apimodels.CodeMissingQuery,
				Message: "Query parameter is required",
			}, decodeError(t, rec))
			assert.Empty(t, fa.requests, "analyzer must not be invoked")
		})
	}
}

func TestAnalyzePassesQueryAndModel(t *testing.T) {
	fa := &fakeAnalyzer{resp: okResponse()}
	h := New(testConfig(), fa).Handler()

	rec := do(t, h, http.MethodGet, "/api/analyze?query=%20%20&model=gpt-4o-mini", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fa.requests, 1)
	assert.Equal(t, apimodels.AnalysisRequest{Query: "  ", Model: "gpt-4o-mini"}, fa.requests[0])
}

type stubTools struct{}

func (stubTools) GetTools() (tools.Set, error) { return tools.Set{}, nil }

type stubRunner struct {
	result *llm.Result
	req    llm.RunRequest
}

func (s *stubRunner) Run(ctx context.Context, req llm.RunRequest) (*llm.Result, error) {
	s.req = req
	return s.result, nil
}

func TestAnalyzeExampleBody(t *testing.T) {
	runner := &stubRunner{result: &llm.Result{
		Text: "Found 3 patents.",
		Steps: []llm.Step{{ToolCalls: []llm.ToolCall{
			{ToolName: "searchPatents", Args: map[string]interface{}{"q": "graphene batteries"}},
		}}},
	}}
	cfg := testConfig()
	h := New(cfg, analyzer.New(stubTools{}, runner, cfg)).Handler()

	rec := do(t, h, http.MethodGet, "/api/analyze?query=What%20patents%20exist%20for%20graphene%20batteries", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`{"text":"Found 3 patents.","steps":[{"toolCalls":[{"tool":"searchPatents","args":{"q":"graphene batteries"}}]}]}`,
		rec.Body.String())

	assert.Equal(t, "gpt-4o", runner.req.Model)
	assert.Equal(t, 5, runner.req.MaxSteps)
	require.Len(t, runner.req.Messages, 2)
	assert.Equal(t, "What patents exist for graphene batteries", runner.req.Messages[1].Content)
}

func TestAnalyzeProcessingError(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("OPS request failed after 2 attempts: connection refused")}
	h := New(testConfig(), fa).Handler()

	rec := do(t, h, http.MethodGet, "/api/analyze?query=graphene", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apimodels.ErrorBody{
		Code:    apimodels.CodeProcessingError,
		Message: "OPS request failed after 2 attempts: connection refused",
	}, decodeError(t, rec))

	fa.err = nil
	fa.resp = okResponse()
	rec = do(t, h, http.MethodGet, "/api/analyze?query=graphene", "")
	assert.Equal(t, http.StatusOK, rec.Code, "server keeps serving after a failure")
}

func TestAnalyzeProcessingErrorFallbackMessage(t *testing.T) {
	fa := &fakeAnalyzer{err: errors.New("")}
	h := New(testConfig(), fa).Handler()

	rec := do(t, h, http.MethodGet, "/api/analyze?query=graphene", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred while processing your request", decodeError(t, rec).Message)
}

func TestAnalyzePanicBecomesProcessingError(t *testing.T) {
	fa := &fakeAnalyzer{resp: okResponse(), panicked: true}
	h := New(testConfig(), fa).Handler()

	rec := do(t, h, http.MethodGet, "/api/analyze?query=graphene", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apimodels.CodeProcessingError, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/analyze?query=graphene", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerClientIP(t *testing.T) {
	fa := &fakeAnalyzer{resp: okResponse()}
	h := New(testConfig(), fa).Handler()

	for i := 0; i < 100; i++ {
		rec := do(t, h, http.MethodGet, "/api/analyze?query=graphene", "192.0.2.10:4000")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := do(t, h, http.MethodGet, "/api/analyze?query=graphene", "192.0.2.10:4001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, apimodels.CodeRateLimited, decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Len(t, fa.requests, 100, "rejected request must not reach the analyzer")

	rec = do(t, h, http.MethodGet, "/api/analyze?query=graphene", "198.51.100.7:4000")
	assert.Equal(t, http.StatusOK, rec.Code, "other clients are unaffected")

	rec = do(t, h, http.MethodGet, "/health", "192.0.2.10:4002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "limit applies to every route")
}

func TestRateLimitIgnoresForwardedHeadersByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Requests = 1
	h := New(cfg, &fakeAnalyzer{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.20:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.20:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitTrustsProxyWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Requests = 1
	cfg.Server.TrustProxy = true
	h := New(cfg, &fakeAnalyzer{}).Handler()

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	h := New(testConfig(), &fakeAnalyzer{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://patents.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoutesReturnJSON(t *testing.T) {
	h := New(testConfig(), &fakeAnalyzer{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/analyze", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apimodels.CodeNotFound, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/analyze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, apimodels.CodeMethodNotAllowed, decodeError(t, rec).Code)
}
