package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"finrag/internal/model"
	"finrag/internal/transport/http/response"
)

type FilingCatalog interface {
	Filings(ctx context.Context) ([]model.Filing, error)
	Filing(ctx context.Context, ticker string) (*model.Filing, error)
}

type FilingHandler struct {
	catalog FilingCatalog
}

func NewFilingHandler(catalog FilingCatalog) *FilingHandler {
	return &FilingHandler{catalog: catalog}
}

func (h *FilingHandler) List(c *gin.Context) {
	list, err := h.catalog.Filings(c.Request.Context())
	if err != nil {
		writeError(c, err, "list filings failed")
		return
	}
	response.OK(c, list)
}

func (h *FilingHandler) Get(c *gin.Context) {
	filing, err := h.catalog.Filing(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		writeError(c, err, "get filing failed")
		return
	}
	response.OK(c, filing)
}
