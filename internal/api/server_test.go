package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/corpusqa/internal/answer"
	"github.com/dgallion1/corpusqa/internal/index"
	"github.com/dgallion1/corpusqa/internal/llm"
)

const testKey = "secret"

type fakeAsker struct {
	got    string
	result answer.Result
}

func (f *fakeAsker) HandleQuestion(_ context.Context, text string) answer.Result {
	f.got = text
	return f.result
}

func newTestServer(t *testing.T, asker Asker) *Server {
	t.Helper()
	stats := llm.NewStats(time.Hour)
	stats.Record(120, false)
	info := Info{
		Index:    index.Manifest{Model: "m", Dimension: 2, ChunkCount: 7, BuildID: "b-1"},
		LLMModel: "Qwen/Qwen2.5-7B-Instruct",
	}
	return NewServer(asker, stats, info, testKey, prometheus.NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth_IsPublic(t *testing.T) {
	s := newTestServer(t, &fakeAsker{})

	rec := do(t, s, http.MethodGet, "/health", "", false)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "b-1", body["build_id"])
}

func TestAsk_RequiresAuth(t *testing.T) {
	s := newTestServer(t, &fakeAsker{})

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/api/ask", `{"question":"x"}`, false).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"x"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAsk_ReturnsResult(t *testing.T) {
	asker := &fakeAsker{result: answer.Result{
		Text:    "Приём документов до 20 июля.",
		Outcome: answer.OutcomeAnswered,
		Sources: []string{"https://example.org/abitur/"},
	}}
	s := newTestServer(t, asker)

	rec := do(t, s, http.MethodPost, "/api/ask", `{"question":"  Когда приём документов?  "}`, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Когда приём документов?", asker.got)
	var res answer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, asker.result, res)
}

func TestAsk_RejectsBadInput(t *testing.T) {
	s := newTestServer(t, &fakeAsker{})

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/ask", `{"question":"   "}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/ask", `not json`, true).Code)

	long := `{"question":"` + strings.Repeat("я", maxQuestionRunes+1) + `"}`
	assert.Equal(t, http.StatusRequestEntityTooLarge, do(t, s, http.MethodPost, "/api/ask", long, true).Code)
}

func TestLLMStats(t *testing.T) {
	s := newTestServer(t, &fakeAsker{})

	rec := do(t, s, http.MethodGet, "/api/stats/llm", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Model string            `json:"model"`
		Stats llm.StatsSnapshot `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", body.Model)
	assert.Equal(t, 1, body.Stats.Count)
}

func TestIndexInfo(t *testing.T) {
	s := newTestServer(t, &fakeAsker{})

	rec := do(t, s, http.MethodGet, "/api/index", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	var m index.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 7, m.ChunkCount)
}

func TestMetrics_CountsOutcomes(t *testing.T) {
	asker := &fakeAsker{result: answer.Result{Outcome: answer.OutcomeNoInformation, Sources: []string{}}}
	s := newTestServer(t, asker)

	do(t, s, http.MethodPost, "/api/ask", `{"question":"что-то"}`, true)
	rec := do(t, s, http.MethodGet, "/metrics", "", false)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `corpusqa_questions_total{outcome="no_information"} 1`)
	assert.Contains(t, body, "corpusqa_llm_latency_p95_ms")
}
