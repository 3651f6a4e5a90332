package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/gonkalabs/scamcheck/internal/detector"
	"github.com/gonkalabs/scamcheck/internal/metrics"
)

//go:embed web/index.html
var webFS embed.FS

var pageTmpl = template.Must(template.ParseFS(webFS, "web/index.html"))

// maxBodyBytes bounds request bodies for both the form and the JSON API.
const maxBodyBytes = 64 << 10

const emptyMessageWarning = "Please enter a message first."

// Analyzer is the part of the detector the handlers need.
type Analyzer interface {
	Analyze(ctx context.Context, message string) (*detector.Result, error)
}

// Handler implements all HTTP endpoints.
type Handler struct {
	analyzer Analyzer
	metrics  *metrics.Collector // nil disables /metrics output
}

// New creates a Handler.
func New(a Analyzer, m *metrics.Collector) *Handler {
	return &Handler{analyzer: a, metrics: m}
}

// Register mounts routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("POST /v1/analyze", h.analyzeJSON)
	mux.HandleFunc("POST /analyze", h.analyzeForm)
	mux.HandleFunc("GET /", h.serveUI)
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type analyzeRequest struct {
	Message string `json:"message"`
}

func (h *Handler) analyzeJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.analyzer.Analyze(r.Context(), req.Message)
	switch {
	case errors.Is(err, detector.ErrEmptyMessage):
		writeErr(w, http.StatusBadRequest, emptyMessageWarning)
	case err != nil:
		writeErr(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// page is the template data for index.html.
type page struct {
	Message  string
	Warning  string
	Error    string
	Analyzed bool
	Verdict  string
	Result   *detector.Result
}

func (h *Handler) analyzeForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, page{Error: "Could not read the form: " + err.Error()})
		return
	}
	p := page{Message: r.PostFormValue("message"), Verdict: "The model"}

	res, err := h.analyzer.Analyze(r.Context(), p.Message)
	switch {
	case errors.Is(err, detector.ErrEmptyMessage):
		p.Warning = emptyMessageWarning
	case err != nil:
		// The message is shown as not flagged alongside the error.
		slog.Warn("api: analysis failed", "err", err)
		p.Error = "Error contacting the model: " + err.Error()
		p.Analyzed, p.Result = true, &detector.Result{}
	default:
		p.Analyzed, p.Result = true, res
		if res.Source == detector.SourceHeuristic {
			p.Verdict = "The pattern check"
		}
	}
	h.render(w, http.StatusOK, p)
}

func (h *Handler) serveUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, http.StatusOK, page{})
}

// ---------- helpers ----------

func (h *Handler) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTmpl.Execute(w, p); err != nil {
		slog.Error("api: render page", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
