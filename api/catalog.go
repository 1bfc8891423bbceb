package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	service catalog.CatalogUseCase
}

type seatsResponse struct {
	Available   []domain.Seat `json:"available"`
	Recommended []domain.Seat `json:"recommended,omitempty"`
}

func NewCatalogHandler(service catalog.CatalogUseCase) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) Register(router *gin.RouterGroup) {
	router.GET("/routes", h.search)
	router.GET("/routes/:id", h.get)
	router.GET("/routes/:id/seats", h.seats)
}

func (h *CatalogHandler) search(c *gin.Context) {
	routes, err := h.service.SearchRoutes(c.Request.Context(), c.Query("source"), c.Query("destination"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, routes)
}

func (h *CatalogHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	route, err := h.service.GetRoute(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// seats lists available seats; with ?user_id= it adds the seats suited to
// that user.
func (h *CatalogHandler) seats(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	available, err := h.service.AvailableSeats(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := seatsResponse{Available: available}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		resp.Recommended, err = h.service.RecommendSeats(c.Request.Context(), id, userID)
		if err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
