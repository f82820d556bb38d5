// Package server exposes the pipeline over HTTP: a JSON API under /api and
// a small HTML viewer for recorded reports.
package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/monitor"
	"github.com/TobiSchelling/newslens/internal/news"
	"github.com/TobiSchelling/newslens/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const serviceName = "newslens"

// Processor runs the pipeline for one topic.
type Processor interface {
	Run(ctx context.Context, input news.ProcessingInput, opts ...pipeline.RunOption) (*pipeline.Result, error)
}

// Store answers recent-entry and health queries.
type Store interface {
	Recent(ctx context.Context, limit int) ([]news.ContextEntry, error)
	Count(ctx context.Context) (int, error)
}

// ReportLog reads recorded runs.
type ReportLog interface {
	ListReports(ctx context.Context, limit int) ([]database.Report, error)
	GetReport(ctx context.Context, id string) (*database.Report, error)
}

// FeedMonitor runs a single feed monitor pass.
type FeedMonitor interface {
	Run(ctx context.Context, window time.Duration, maxItems int) (monitor.Result, error)
}

// Deps are the collaborators behind the HTTP handlers. Monitor is optional.
type Deps struct {
	Pipeline Processor
	Store    Store
	Reports  ReportLog
	Monitor  FeedMonitor

	Version         string
	AllowedOrigins  []string
	Timeout         time.Duration
	MonitorWindow   time.Duration
	MonitorMaxItems int
}

// Server is the HTTP server for the API and report viewer.
type Server struct {
	deps   Deps
	pages  map[string]*template.Template
	router *gin.Engine
}

// New creates a new Server.
func New(deps Deps) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"swedish": func(l news.BiasLabel) string { return l.Swedish() },
		"date": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so the content blocks don't collide.
	pageNames := []string{"index.html", "report.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	if deps.MonitorWindow <= 0 {
		deps.MonitorWindow = 2 * time.Hour
	}
	if deps.MonitorMaxItems <= 0 {
		deps.MonitorMaxItems = 10
	}

	s := &Server{deps: deps, pages: pages, router: gin.New()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(gin.Recovery(), requestLogger())
	if len(s.deps.AllowedOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins: s.deps.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	staticSub, _ := fs.Sub(staticFS, "static")
	s.router.StaticFS("/static", http.FS(staticSub))

	s.router.GET("/", s.handleIndex)
	s.router.GET("/reports/:id", s.handleReport)

	api := s.router.Group("/api")
	{
		api.POST("/process", s.handleProcess)
		api.GET("/health", s.handleHealth)
		api.GET("/recent", s.handleRecent)
		api.POST("/monitor", s.handleMonitor)
		api.GET("/reports", s.handleListReports)
		api.GET("/reports/:id", s.handleGetReport)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}

func (s *Server) render(c *gin.Context, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		slog.Error("template not found", "name", name)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Render(status, render.HTML{Template: tmpl, Name: "base.html", Data: data})
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, deps Deps, port int) error {
	srv, err := New(deps)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "url", "http://"+httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
