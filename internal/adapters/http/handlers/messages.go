package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/msgflow/internal/adapters/http/dto"
	"github.com/jsamuelsen/msgflow/internal/adapters/http/middleware"
	"github.com/jsamuelsen/msgflow/internal/app"
	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// MessageHandler handles message submission endpoints.
type MessageHandler struct {
	processor   *app.Processor
	concurrency int
}

// NewMessageHandler creates a message handler. concurrency bounds the number
// of batch messages processed in parallel.
func NewMessageHandler(processor *app.Processor, concurrency int) *MessageHandler {
	return &MessageHandler{
		processor:   processor,
		concurrency: concurrency,
	}
}

// Process handles POST /api/v1/messages.
// The message is processed in its own unit of work before the response is
// written: 200 means the unit committed.
//
// @Summary Process a message
// @Tags messages
// @Accept json
// @Produce json
// @Param message body dto.MessageRequest true "Message"
// @Success 200 {object} dto.MessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/messages [post]
func (h *MessageHandler) Process(c *gin.Context) {
	var req dto.MessageRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	msg := req.ToMessage(middleware.MetaDataFromContext(ctx))

	result, err := h.processor.Process(ctx, msg)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{
		MessageID: msg.ID,
		Name:      msg.Name,
		Result:    result,
	})
}

// ProcessBatch handles POST /api/v1/messages/batch.
// Every message gets an independent unit of work; a failing message does not
// roll back the others. Outcomes are reported in request order.
//
// @Summary Process independent messages
// @Tags messages
// @Accept json
// @Produce json
// @Param batch body dto.BatchRequest true "Messages"
// @Success 200 {object} dto.BatchResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/messages/batch [post]
func (h *MessageHandler) ProcessBatch(c *gin.Context) {
	var req dto.BatchRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	defaults := middleware.MetaDataFromContext(ctx)

	msgs := make([]messaging.Message, len(req.Messages))
	for i := range req.Messages {
		msgs[i] = req.Messages[i].ToMessage(defaults)
	}

	outcomes := h.processor.ProcessConcurrently(ctx, h.concurrency, msgs)

	resp := dto.BatchResponse{Items: make([]dto.BatchItem, len(outcomes))}
	for i, o := range outcomes {
		item := dto.BatchItem{MessageID: o.MessageID, Name: msgs[i].Name}
		if o.Err != nil {
			item.Error = dto.ErrorDetailOf(o.Err)
			resp.Failed++
		} else {
			item.Result = o.Value
			resp.Succeeded++
		}
		resp.Items[i] = item
	}

	c.JSON(http.StatusOK, resp)
}

// handlersResponse lists the routable message names.
type handlersResponse struct {
	Names []string `json:"names"`
}

// ListHandlers handles GET /api/v1/handlers.
func (h *MessageHandler) ListHandlers(c *gin.Context) {
	c.JSON(http.StatusOK, handlersResponse{Names: h.processor.Dispatcher().Names()})
}

// RegisterMessageRoutes registers message routes on the given router group.
func (h *MessageHandler) RegisterMessageRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages", h.Process)
	rg.POST("/messages/batch", h.ProcessBatch)
	rg.GET("/handlers", h.ListHandlers)
}
