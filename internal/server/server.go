package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"uptimestrip/internal/metrics"
	"uptimestrip/internal/models"
)

//go:embed static/*
var embeddedStatic embed.FS

// SnapshotSource exposes the derived uptime strips.
type SnapshotSource interface {
	Snapshot() []models.Snapshot
	SourceSnapshot(id string) (models.Snapshot, bool)
	Subscribe() (<-chan struct{}, func())
}

// Server wraps HTTP serving of API + static assets.
type Server struct {
	httpServer *http.Server
	source     SnapshotSource
	staticFS   fs.FS
	page       *template.Template
	pushEvery  time.Duration
}

// New creates a configured HTTP server for the uptime strips.
func New(addr string, source SnapshotSource) *Server {
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}
	page := template.Must(template.New("index.html.tmpl").Funcs(template.FuncMap{
		"rfc3339": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	}).ParseFS(staticFS, "index.html.tmpl"))

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		source:     source,
		staticFS:   staticFS,
		page:       page,
		pushEvery:  overviewPushInterval,
	}
	s.registerRoutes(mux)
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	fileServer := http.FileServer(http.FS(s.staticFS))

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/{source}", s.handleSourceHistory)
	mux.HandleFunc("/api/uptime", s.handleUptime)
	mux.HandleFunc("/api/ws", s.handleOverviewWS)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, struct {
		Snapshots []models.Snapshot
	}{Snapshots: s.source.Snapshot()}); err != nil {
		log.Printf("render index: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Snapshot())
}

func (s *Server) handleSourceHistory(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.source.SourceSnapshot(r.PathValue("source"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUptime(w http.ResponseWriter, _ *http.Request) {
	summary := metrics.ComputeServiceUptime(s.source.Snapshot())
	if summary == nil {
		summary = []metrics.ServiceUptime{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
