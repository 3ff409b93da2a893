package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/msgflow/internal/adapters/http/dto"
	"github.com/jsamuelsen/msgflow/internal/app"
	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/ports"
)

// EventHandler serves the outbox and the event projection.
type EventHandler struct {
	store    ports.EventStore
	stats    *app.Stats
	maxLimit int
}

// NewEventHandler creates an event handler. maxLimit caps the page size.
func NewEventHandler(store ports.EventStore, stats *app.Stats, maxLimit int) *EventHandler {
	return &EventHandler{
		store:    store,
		stats:    stats,
		maxLimit: maxLimit,
	}
}

// ListEvents handles GET /api/v1/events.
// Only events recorded by committed units of work are listed.
//
// @Summary List recorded events
// @Tags events
// @Produce json
// @Param cursor query string false "Cursor from a previous page"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.Page[dto.EventResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/events [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	var query dto.PageQuery
	if err := dto.BindQueryAndValidate(c, &query); err != nil {
		dto.HandleError(c, err)
		return
	}

	after, limit, err := query.Window(h.maxLimit)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	// One extra event tells whether another page follows.
	events, err := h.store.List(c.Request.Context(), after, limit+1)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	items := make([]dto.EventResponse, len(events))
	for i, e := range events {
		items[i] = dto.NewEventResponse(e)
	}

	c.JSON(http.StatusOK, dto.NewPage(items, limit, func(e dto.EventResponse) int64 {
		return e.Sequence
	}))
}

// Stats handles GET /api/v1/stats.
// It reports delivered events by name, counting only events whose
// subscriber unit of work committed.
func (h *EventHandler) Stats(c *gin.Context) {
	if h.stats == nil {
		dto.HandleError(c, domain.NewUnavailableError("stats", "projection not configured"))
		return
	}
	c.JSON(http.StatusOK, dto.StatsResponse{Events: h.stats.Snapshot()})
}

// RegisterEventRoutes registers event routes on the given router group.
func (h *EventHandler) RegisterEventRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.ListEvents)
	rg.GET("/stats", h.Stats)
}
