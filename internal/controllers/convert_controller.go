package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/renderq/renderq/internal/orchestrator"
	"github.com/renderq/renderq/pkg/domain"
)

type convertController struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func NewConvertController(orch *orchestrator.Orchestrator, logger *slog.Logger) *convertController {
	if logger == nil {
		logger = slog.Default()
	}
	return &convertController{orch: orch, logger: logger}
}

type convertReq struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Webhook     string `json:"webhook,omitempty"`
	UniqueID    string `json:"unique_id"`
}

func (h *convertController) Handle(c *gin.Context) {
	var req convertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": "invalid body"})
		return
	}

	result, err := h.orch.Process(c.Request.Context(), domain.ConversionRequest{
		RequestID:   req.UniqueID,
		Source:      req.Source,
		Destination: req.Destination,
		Webhook:     req.Webhook,
		ReceivedAt:  time.Now(),
	})
	if err != nil {
		h.respondError(c, req.UniqueID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "completed",
		"unique_id":       result.RequestID,
		"images":          result.Images,
		"pages_converted": result.PagesConverted,
		"metadata":        result.Metadata,
	})
}

func (h *convertController) respondError(c *gin.Context, requestID string, err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": vErr.Error(), "unique_id": requestID})
		return
	}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "failed", "error": stageErr.Error(), "unique_id": requestID})
		return
	}
	// Full detail stays server-side; the caller gets a generic message.
	h.logger.Error("unexpected conversion failure", "requestId", requestID, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "internal error", "unique_id": requestID})
}
