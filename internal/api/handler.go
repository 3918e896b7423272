package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spacesedan/commentguard/internal/models"
	"github.com/spacesedan/commentguard/internal/monitoring"
	"github.com/spacesedan/commentguard/internal/reply"
)

type SummaryReader interface {
	Dashboard(ctx context.Context, limit int) (*models.Dashboard, error)
	List(ctx context.Context, category models.Category, limit int, cursor string) (*models.CommentListPage, error)
	Stats(ctx context.Context) (*models.DashboardStats, error)
}

type Replier interface {
	Suggest(ctx context.Context, id string) (string, error)
	Post(ctx context.Context, id, text string) error
}

type Syncer interface {
	RunScheduled(ctx context.Context) (*models.SyncRun, error)
}

// Handler serves the dashboard API. Responses carry only comment views,
// counts and run summaries.
type Handler struct {
	summary SummaryReader
	replies Replier
	syncer  Syncer
	health  *monitoring.Health
}

func NewHandler(summary SummaryReader, replies Replier, syncer Syncer, health *monitoring.Health) *Handler {
	return &Handler{
		summary: summary,
		replies: replies,
		syncer:  syncer,
		health:  health,
	}
}

type replyRequest struct {
	Text string `json:"text" binding:"required"`
}

// NewRouter builds the gin engine with logging and recovery middleware.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		comments := api.Group("/comments")
		comments.GET("/summary", h.GetSummary)
		comments.GET("/stats", h.GetStats)
		comments.GET("/category/:category", h.GetCategory)
		comments.POST("/:id/suggest-reply", h.SuggestReply)
		comments.POST("/:id/reply", h.PostReply)
		comments.POST("/sync", h.TriggerSync)

		api.POST("/scheduler/process", h.TriggerSync)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *Handler) GetSummary(c *gin.Context) {
	dashboard, err := h.summary.Dashboard(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.summary.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetCategory(c *gin.Context) {
	category := models.Category(c.Param("category"))
	page, err := h.summary.List(c.Request.Context(), category, queryInt(c, "limit"), c.Query("cursor"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) SuggestReply(c *gin.Context) {
	id := c.Param("id")
	suggestion, err := h.replies.Suggest(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "suggestion": suggestion})
}

func (h *Handler) PostReply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reply text is required"})
		return
	}

	id := c.Param("id")
	if err := h.replies.Post(c.Request.Context(), id, req.Text); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "replied"})
}

// TriggerSync runs one sync cycle. The run is detached from the request so a
// dropped connection does not abort it.
func (h *Handler) TriggerSync(c *gin.Context) {
	run, err := h.syncer.RunScheduled(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		slog.Error("[API] Sync run failed", slog.String("error", err.Error()))
		status := http.StatusBadGateway
		msg := "sync failed, retry later"
		if errors.Is(err, models.ErrSourceUnauthorized) {
			msg = "comment source rejected credentials"
		}
		c.JSON(status, gin.H{"error": msg, "run": run})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.health != nil {
		classifier := gin.H{"healthy": h.health.Healthy()}
		if last := h.health.LastCheck(); !last.IsZero() {
			classifier["last_check"] = last.UTC().Format(time.RFC3339)
		}
		resp[h.health.Name()] = classifier
		if !h.health.Healthy() {
			resp["status"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// writeError maps domain errors to status codes with fixed messages; error
// details stay in the logs.
func writeError(c *gin.Context, err error) {
	var recErr *models.ReconciliationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
	case errors.Is(err, models.ErrAlreadyReplied):
		c.JSON(http.StatusConflict, gin.H{"error": "comment already replied"})
	case errors.Is(err, models.ErrCategoryNotListable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is not available"})
	case errors.Is(err, models.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
	case errors.Is(err, reply.ErrEmptyReply):
		c.JSON(http.StatusBadRequest, gin.H{"error": "reply text is required"})
	case errors.As(err, &recErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply was posted but could not be recorded; do not resubmit"})
	case models.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry later"})
	default:
		slog.Error("[API] Request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "request failed, retry later"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("[API] Request",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
