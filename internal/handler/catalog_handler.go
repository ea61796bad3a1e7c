package handler

import (
	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/service"
	"biliticket/possync/pkg/response"
)

type CatalogHandler struct {
	catalog *service.CatalogService
}

func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Search serves ?category= and ?q= from the local replica.
func (h *CatalogHandler) Search(c *gin.Context) {
	products, err := h.catalog.Search(c.Request.Context(), c.Query("category"), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, products)
}

func (h *CatalogHandler) Get(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, product)
}

func (h *CatalogHandler) Refresh(c *gin.Context) {
	n, err := h.catalog.Refresh(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"products": n})
}

func (h *CatalogHandler) Warm(c *gin.Context) {
	report, err := h.catalog.Warm(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}
