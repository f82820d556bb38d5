package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/newslens/internal/database"
	"github.com/TobiSchelling/newslens/internal/news"
	"github.com/TobiSchelling/newslens/internal/pipeline"
	"github.com/TobiSchelling/newslens/internal/publish"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type processRequest struct {
	TopicTitle       string `json:"topic_title"`
	TopicURL         string `json:"topic_url"`
	TopicDescription string `json:"topic_description"`
	Publish          bool   `json:"publish"`
}

type monitorRequest struct {
	Hours    int `json:"hours"`
	MaxItems int `json:"max_items"`
}

type reportSummary struct {
	ID           string  `json:"id"`
	Topic        string  `json:"topic"`
	Query        string  `json:"query"`
	ArticleCount int     `json:"article_count"`
	PublishID    *string `json:"publish_id"`
	CreatedAt    string  `json:"created_at"`
}

func toReportSummary(r database.Report) reportSummary {
	return reportSummary{
		ID:           r.ID,
		Topic:        r.Topic,
		Query:        r.Query,
		ArticleCount: r.ArticleCount,
		PublishID:    r.PublishID,
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"status": "error", "error": msg})
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func (s *Server) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.deps.Timeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.deps.Timeout)
	}
	return context.WithCancel(c.Request.Context())
}

func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	input := news.ProcessingInput{
		Title:       req.TopicTitle,
		URL:         req.TopicURL,
		Description: req.TopicDescription,
	}
	if input.Empty() {
		respondError(c, http.StatusBadRequest, news.ErrNoInput.Error())
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	res, err := s.deps.Pipeline.Run(ctx, input, pipeline.WithPublish(req.Publish))
	if errors.Is(err, news.ErrNoInput) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("processing failed", "error", err)
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(c, res.Processing)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   serviceName,
		"version":   s.deps.Version,
	}

	n, err := s.deps.Store.Count(c.Request.Context())
	if err != nil {
		slog.Warn("health check failed", "error", err)
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["store"] = gin.H{"documents": n}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRecent(c *gin.Context) {
	limit := getQueryInt(c, "limit", defaultRecentLimit)
	limit = min(max(limit, 1), maxRecentLimit)

	entries, err := s.deps.Store.Recent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("listing recent entries failed", "error", err)
		respondError(c, http.StatusInternalServerError, "store error")
		return
	}
	if entries == nil {
		entries = []news.ContextEntry{}
	}
	respondOK(c, entries)
}

func (s *Server) handleMonitor(c *gin.Context) {
	if s.deps.Monitor == nil {
		respondError(c, http.StatusServiceUnavailable, "feed monitor is not configured")
		return
	}

	var req monitorRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	window := s.deps.MonitorWindow
	if req.Hours > 0 {
		window = time.Duration(req.Hours) * time.Hour
	}
	maxItems := s.deps.MonitorMaxItems
	if req.MaxItems > 0 {
		maxItems = req.MaxItems
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()

	res, err := s.deps.Monitor.Run(ctx, window, maxItems)
	if err != nil {
		slog.Error("monitor pass failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":          "error",
			"error":           err.Error(),
			"processing_time": res.Duration.Seconds(),
		})
		return
	}
	respondOK(c, gin.H{
		"items_found":     res.ItemsFound,
		"items_processed": res.ItemsProcessed,
		"processing_time": res.Duration.Seconds(),
	})
}

func (s *Server) handleListReports(c *gin.Context) {
	limit := getQueryInt(c, "limit", 50)
	reports, err := s.deps.Reports.ListReports(c.Request.Context(), limit)
	if err != nil {
		slog.Error("listing reports failed", "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}
	out := make([]reportSummary, 0, len(reports))
	for _, r := range reports {
		out = append(out, toReportSummary(r))
	}
	respondOK(c, out)
}

func (s *Server) handleGetReport(c *gin.Context) {
	r, err := s.deps.Reports.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		slog.Error("loading report failed", "id", c.Param("id"), "error", err)
		respondError(c, http.StatusInternalServerError, "database error")
		return
	}
	if r == nil {
		respondError(c, http.StatusNotFound, "report not found")
		return
	}
	respondOK(c, json.RawMessage(r.ResultJSON))
}

func (s *Server) handleIndex(c *gin.Context) {
	reports, err := s.deps.Reports.ListReports(c.Request.Context(), 50)
	if err != nil {
		slog.Error("listing reports failed", "error", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	s.render(c, http.StatusOK, "index.html", gin.H{
		"Reports": reports,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	id := c.Param("id")
	r, err := s.deps.Reports.GetReport(c.Request.Context(), id)
	if err != nil {
		slog.Error("loading report failed", "id", id, "error", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	if r == nil {
		s.render(c, http.StatusNotFound, "report.html", gin.H{"ID": id})
		return
	}

	var result news.ProcessingResult
	if err := json.Unmarshal([]byte(r.ResultJSON), &result); err != nil {
		slog.Error("decoding report failed", "id", id, "error", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	s.render(c, http.StatusOK, "report.html", gin.H{
		"ID":       id,
		"Report":   r,
		"Result":   &result,
		"Markdown": publish.Markdown(&result),
	})
}

func getQueryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
