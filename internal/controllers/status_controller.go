package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renderq/renderq/internal/ledger"
)

type statusController struct {
	ledger ledger.Ledger
}

func NewStatusController(l ledger.Ledger) *statusController {
	return &statusController{ledger: l}
}

func (h *statusController) Handle(c *gin.Context) {
	id := c.Param("id")
	record, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, record)
}
