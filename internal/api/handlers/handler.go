package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hjemla/easeewatch/internal/api/easee"
	"github.com/hjemla/easeewatch/internal/cache"
	"github.com/hjemla/easeewatch/internal/models"
	"github.com/hjemla/easeewatch/pkg/ws"
)

// fieldAliases maps the legacy route names to their canonical field. Resolved
// once here at the query-surface boundary.
var fieldAliases = map[string]models.Field{
	"carChargerUsage":    models.FieldPower,
	"easeeLadeMengde":    models.FieldSession,
	"easeeEnergyPerHour": models.FieldEnergy,
}

// SampleReader is the read side of the sample store.
type SampleReader interface {
	ListByCharger(ctx context.Context, chargerID, field string, limit int) ([]*models.Sample, error)
}

// SessionInfo reports the session lifecycle state for health checks.
type SessionInfo interface {
	State() string
}

// Handler serves the HTTP query surface over the telemetry cache.
type Handler struct {
	logger   *zap.Logger
	cache    *cache.TelemetryCache
	cacheTTL time.Duration
	samples  SampleReader
	session  SessionInfo
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates the handler.
func NewHandler(
	logger *zap.Logger,
	telemetryCache *cache.TelemetryCache,
	cacheTTL time.Duration,
	samples SampleReader,
	session SessionInfo,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:   logger,
		cache:    telemetryCache,
		cacheTTL: cacheTTL,
		samples:  samples,
		session:  session,
		wsHub:    wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers all routes. The field routes are enumerated
// explicitly so they never conflict with the static routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Index)

	for _, field := range models.Fields {
		field := field
		r.GET("/"+string(field), func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/"+string(field)+"/0")
		})
		r.GET("/"+string(field)+"/:index", h.fieldValue(field))
	}

	for alias, field := range fieldAliases {
		target := "/" + string(field)
		r.GET("/"+alias, func(c *gin.Context) {
			c.Redirect(http.StatusFound, target)
		})
	}

	// Exported sample read-back
	r.GET("/api/chargers/:id/samples", h.ListSamples)

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// Health check
	r.GET("/health", h.HealthCheck)
}

// Index returns the current state of all chargers as JSON.
func (h *Handler) Index(c *gin.Context) {
	states, err := h.cache.GetOrRefresh(c.Request.Context(), h.cacheTTL)
	if err != nil {
		h.logger.Error("Failed to get charger states", zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, states)
}

// fieldValue serves one numeric field of the charger at the given index as
// plain text.
func (h *Handler) fieldValue(field models.Field) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil || index < 0 {
			c.String(http.StatusBadRequest, "Invalid index")
			return
		}

		states, err := h.cache.GetOrRefresh(c.Request.Context(), h.cacheTTL)
		if err != nil {
			h.logger.Error("Failed to get charger states", zap.Error(err))
			c.String(statusForError(err), "")
			return
		}

		if index >= len(states) {
			h.logger.Info("Requested index out of range", zap.Int("index", index), zap.Int("chargers", len(states)))
			c.String(http.StatusBadRequest, "Index out of range")
			return
		}

		value := field.Value(states[index])
		c.String(http.StatusOK, strconv.FormatFloat(value, 'f', -1, 64))
	}
}

// ListSamples returns recently exported samples for a charger.
func (h *Handler) ListSamples(c *gin.Context) {
	chargerID := c.Param("id")

	field := c.Query("field")
	if field != "" {
		if _, ok := models.ParseField(field); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid field"})
			return
		}
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	samples, err := h.samples.ListByCharger(c.Request.Context(), chargerID, field, limit)
	if err != nil {
		h.logger.Error("Failed to list samples", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list samples"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": samples})
}

// HandleWebSocket upgrades the connection and subscribes it to telemetry.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck reports process health and the session lifecycle state.
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":     "ok",
		"session":    h.session.State(),
		"ws_clients": h.wsHub.ClientCount(),
	}

	if _, fetchedAt, ok := h.cache.Cached(); ok {
		resp["last_fetch_age_seconds"] = int(time.Since(fetchedAt).Seconds())
	}

	c.JSON(http.StatusOK, resp)
}

// statusForError maps an error kind to the externally visible status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, easee.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, easee.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
