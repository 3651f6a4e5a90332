package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/scamcheck/internal/detector"
	"github.com/gonkalabs/scamcheck/internal/metrics"
	"github.com/gonkalabs/scamcheck/internal/sanitize"
)

type fakeAnalyzer struct {
	res *detector.Result
	err error
	got string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, message string) (*detector.Result, error) {
	f.got = message
	if strings.TrimSpace(message) == "" {
		return nil, detector.ErrEmptyMessage
	}
	return f.res, f.err
}

func newServer(t *testing.T, a Analyzer) *httptest.Server {
	t.Helper()
	m := metrics.New()
	m.IncAnalysis(true)
	mux := http.NewServeMux()
	New(a, m).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestMetrics(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "scamcheck_analyses_total 1")
}

func TestIndex(t *testing.T) {
	srv := newServer(t, &fakeAnalyzer{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Scam Detector")
	assert.Contains(t, body, `<textarea id="message" name="message">`)
	assert.Contains(t, body, "Analyze</button>")

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	_ = readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyzeForm(t *testing.T) {
	tests := []struct {
		name    string
		message string
		a       *fakeAnalyzer
		want    []string
		notWant []string
	}{
		{
			name:    "empty",
			message: "  ",
			a:       &fakeAnalyzer{},
			want:    []string{"Please enter a message first."},
			notWant: []string{"SCAM", "NOT a scam"},
		},
		{
			name:    "scam",
			message: "Send 1 BTC <now>",
			a: &fakeAnalyzer{res: &detector.Result{
				ID: "abc", Scam: true, Source: detector.SourceModel, Provider: "openai",
				Explanation: "It demands <urgent> payment.",
			}},
			want: []string{
				"The model thinks this message is a SCAM.",
				"Why it might be a scam",
				"It demands &lt;urgent&gt; payment.",
				"Send 1 BTC &lt;now&gt;",
			},
		},
		{
			name:    "heuristic",
			message: "you have won",
			a: &fakeAnalyzer{res: &detector.Result{
				Scam: true, Source: detector.SourceHeuristic, ExplanationError: "failed to get explanation: boom",
			}},
			want: []string{"The pattern check thinks this message is a SCAM.", "failed to get explanation: boom"},
		},
		{
			name:    "redacted",
			message: "mail a@b.io",
			a: &fakeAnalyzer{res: &detector.Result{
				ID: "r1", Source: detector.SourceModel, Redacted: 1,
				Redactions: []sanitize.Redaction{{Token: "«EMAIL_1»", Original: "a@b.io"}},
			}},
			want: []string{"Hidden from the model:", "«EMAIL_1» = a@b.io", "1 redacted"},
		},
		{
			name:    "not scam",
			message: "lunch?",
			a:       &fakeAnalyzer{res: &detector.Result{Source: detector.SourceCache}},
			want:    []string{"NOT a scam"},
		},
		{
			name:    "model error",
			message: "hello",
			a:       &fakeAnalyzer{err: fmt.Errorf("%w: 503", detector.ErrClassify)},
			want:    []string{"Error contacting the model", "NOT a scam"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.a)
			resp, err := http.PostForm(srv.URL+"/analyze", url.Values{"message": {tt.message}})
			require.NoError(t, err)
			body := readBody(t, resp)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.message, tt.a.got)
			for _, s := range tt.want {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestAnalyzeJSON(t *testing.T) {
	a := &fakeAnalyzer{res: &detector.Result{ID: "x1", Scam: true, Source: detector.SourceModel, Explanation: "because"}}
	srv := newServer(t, a)

	resp, err := http.Post(srv.URL+"/v1/analyze", "application/json", strings.NewReader(`{"message":"pay now"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got detector.Result
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &got))
	assert.Equal(t, "x1", got.ID)
	assert.True(t, got.Scam)
	assert.Equal(t, "because", got.Explanation)
	assert.Equal(t, "pay now", a.got)
}

func TestAnalyzeJSON_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		want   string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid JSON"},
		{"empty", `{"message":""}`, nil, http.StatusBadRequest, "Please enter a message first."},
		{"classify failed", `{"message":"hi"}`, fmt.Errorf("%w: %w", detector.ErrClassify, errors.New("503")), http.StatusBadGateway, "classification failed"},
		{"too large", `{"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`, nil, http.StatusRequestEntityTooLarge, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, &fakeAnalyzer{err: tt.err})
			resp, err := http.Post(srv.URL+"/v1/analyze", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			body := readBody(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)

			var e map[string]string
			require.NoError(t, json.Unmarshal([]byte(body), &e))
			assert.Contains(t, e["error"], tt.want)
		})
	}
}
