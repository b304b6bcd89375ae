package telegram

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trendlens/admin-api/internal/handler"
	"github.com/trendlens/admin-api/internal/model"
)

const (
	defaultStatsHours   = 24
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SettingsService reads and patches the delivery configuration.
type SettingsService interface {
	Get(ctx context.Context) (*model.DeliverySettings, error)
	Patch(ctx context.Context, patch model.DeliverySettingsPatch) (*model.DeliverySettings, error)
}

// DispatchService runs delivery passes and the connection test.
type DispatchService interface {
	DispatchPending(ctx context.Context, dryRun bool, limit int) (*model.DispatchResult, error)
	SendTestMessage(ctx context.Context) (string, error)
}

// ConnectionService manages the admin's chat connection.
type ConnectionService interface {
	CreateLinkToken(ctx context.Context, userID string) (*model.LinkToken, error)
	Status(ctx context.Context, userID string) (*model.ConnectionStatus, error)
	Disconnect(ctx context.Context, userID string) error
	GetPreferences(ctx context.Context, userID string) (map[model.AlertType]bool, error)
	UpdatePreferences(ctx context.Context, userID string, raw map[string]bool) (map[model.AlertType]bool, error)
}

// HistoryStore is the read side of the delivery log.
type HistoryStore interface {
	List(ctx context.Context, limit int) ([]*model.DeliveryRecord, error)
	Stats(ctx context.Context, since time.Time) (*model.DeliveryStats, error)
}

// Handler exposes the telegram connection block of the admin API.
type Handler struct {
	settings    SettingsService
	dispatch    DispatchService
	connections ConnectionService
	history     HistoryStore
}

func NewHandler(settings SettingsService, dispatch DispatchService, connections ConnectionService, history HistoryStore) *Handler {
	return &Handler{
		settings:    settings,
		dispatch:    dispatch,
		connections: connections,
		history:     history,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tg := r.Group("/connections/telegram")
	{
		tg.GET("/settings", h.GetSettings)
		tg.PATCH("/settings", h.UpdateSettings)
		tg.GET("/stats", h.GetStats)
		tg.GET("/history", h.GetHistory)
		tg.POST("/test", h.SendTest)
		tg.POST("/dispatch", h.Dispatch)
		tg.GET("/connect-link", h.CreateConnectLink)
		tg.GET("/status", h.GetStatus)
		tg.POST("/disconnect", h.Disconnect)
		tg.GET("/events", h.GetEventPreferences)
		tg.PUT("/events", h.UpdateEventPreferences)
	}
}

// currentUser is the authenticated admin identity set by the auth
// middleware.
func currentUser(c *gin.Context) string {
	return c.GetString("username")
}

func (h *Handler) GetSettings(c *gin.Context) {
	cfg, err := h.settings.Get(c.Request.Context())
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

// settingsRequest carries raw string keys so unknown alert types can be
// dropped instead of failing the whole update.
type settingsRequest struct {
	Enabled     *bool              `json:"enabled"`
	PreviewOnly *bool              `json:"preview_only"`
	ChatID      *string            `json:"chat_id"`
	CooldownHrs map[string]float64 `json:"cooldown_hours"`
	TypeEnabled map[string]bool    `json:"type_enabled"`
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("bad_request", "invalid settings payload"))
		return
	}

	patch := model.DeliverySettingsPatch{
		Enabled:     req.Enabled,
		PreviewOnly: req.PreviewOnly,
		ChatID:      req.ChatID,
	}
	for key, hrs := range req.CooldownHrs {
		t, err := model.ParseAlertType(key)
		if err != nil || hrs < 0 {
			continue
		}
		if patch.CooldownHrs == nil {
			patch.CooldownHrs = map[model.AlertType]float64{}
		}
		patch.CooldownHrs[t] = hrs
	}
	for key, on := range req.TypeEnabled {
		t, err := model.ParseAlertType(key)
		if err != nil {
			continue
		}
		if patch.TypeEnabled == nil {
			patch.TypeEnabled = map[model.AlertType]bool{}
		}
		patch.TypeEnabled[t] = on
	}

	cfg, err := h.settings.Patch(c.Request.Context(), patch)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cfg))
}

func (h *Handler) GetStats(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", strconv.Itoa(defaultStatsHours)))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("bad_request", "hours must be a positive integer"))
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.history.Stats(c.Request.Context(), since)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"hours": hours,
		"stats": stats,
	}))
}

func (h *Handler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("bad_request", "limit must be a positive integer"))
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	if records == nil {
		records = []*model.DeliveryRecord{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) SendTest(c *gin.Context) {
	message, err := h.dispatch.SendTestMessage(c.Request.Context())
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"message": message}))
}

type dispatchRequest struct {
	DryRun bool `json:"dryRun"`
	Limit  int  `json:"limit"`
}

func (h *Handler) Dispatch(c *gin.Context) {
	var req dispatchRequest
	// An empty body means a real pass with the default batch size.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("bad_request", "invalid dispatch payload"))
			return
		}
	}

	result, err := h.dispatch.DispatchPending(c.Request.Context(), req.DryRun, req.Limit)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) CreateConnectLink(c *gin.Context) {
	link, err := h.connections.CreateLinkToken(c.Request.Context(), currentUser(c))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(link))
}

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.connections.Status(c.Request.Context(), currentUser(c))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(status))
}

func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.connections.Disconnect(c.Request.Context(), currentUser(c)); err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"disconnected": true}))
}

func (h *Handler) GetEventPreferences(c *gin.Context) {
	prefs, err := h.connections.GetPreferences(c.Request.Context(), currentUser(c))
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}

func (h *Handler) UpdateEventPreferences(c *gin.Context) {
	var raw map[string]bool
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("bad_request", "invalid preferences payload"))
		return
	}

	prefs, err := h.connections.UpdatePreferences(c.Request.Context(), currentUser(c), raw)
	if err != nil {
		handler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}
