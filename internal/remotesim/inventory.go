package remotesim

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/pkg/response"
)

func (s *Server) searchInventory(c *gin.Context) {
	category := c.Query("category")
	query := strings.ToLower(c.Query("q"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	s.mu.Lock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.SKU), query) {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	response.Success(c, out)
}

func (s *Server) getProduct(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[c.Param("id")]
	if !ok {
		response.NotFound(c, "product not found")
		return
	}
	response.Success(c, p)
}

func (s *Server) reserveStock(c *gin.Context) {
	s.adjustStock(c, -1)
}

func (s *Server) releaseStock(c *gin.Context) {
	s.adjustStock(c, 1)
}

func (s *Server) adjustStock(c *gin.Context, sign int) {
	var req apiclient.StockReservation
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity <= 0 {
		response.BadRequest(c, "quantity must be positive")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[c.Param("id")]
	if !ok {
		response.NotFound(c, "product not found")
		return
	}
	next := p.Stock + sign*req.Quantity
	if next < 0 {
		response.Conflict(c, "insufficient stock")
		return
	}
	p.Stock = next
	s.products[p.ProductID] = p
	response.Success(c, p)
}
