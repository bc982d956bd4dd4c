package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vasp-link.backend/internal/domain/entities"
	"vasp-link.backend/internal/domain/protocol"
	"vasp-link.backend/internal/usecases"
	"vasp-link.backend/pkg/logger"
)

// jwsContentType is the media type of signed command payloads.
const jwsContentType = "application/jws"

// CommandHandler serves the off-chain command endpoint.
type CommandHandler struct {
	engine *usecases.OffchainEngine
}

// NewCommandHandler creates a command handler backed by the engine.
func NewCommandHandler(engine *usecases.OffchainEngine) *CommandHandler {
	return &CommandHandler{engine: engine}
}

// HandleCommand processes one inbound signed command request. Protocol and
// command failures come back as signed 400 responses; unexpected failures
// map to a bare 500.
func (h *CommandHandler) HandleCommand(c *gin.Context) {
	ctx := c.Request.Context()

	keyAccountID := c.GetHeader(protocol.HeaderVerificationKeyAddress)
	if keyAccountID == "" {
		h.replyMissingKeyAddress(c)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Error(ctx, "read command request body failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	code, payload, err := h.engine.ProcessInbound(ctx, keyAccountID, body)
	if err != nil {
		logger.Error(ctx, "process inbound command failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(code, jwsContentType, payload)
}

// replyMissingKeyAddress signs a protocol error response; without the header
// there is no way to verify the request at all.
func (h *CommandHandler) replyMissingKeyAddress(c *gin.Context) {
	msg := "missing " + protocol.HeaderVerificationKeyAddress + " header"
	response := entities.ReplyRequest(nil, entities.OffChainError{
		Type:    entities.ErrorTypeProtocol,
		Code:    entities.ErrorCodeInvalidRequest,
		Message: &msg,
	})
	payload, err := h.engine.SignResponse(response)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusBadRequest, jwsContentType, payload)
}
