package http

import (
	"net/http"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/logger"
	"streamcast/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RoomHandler exposes read-only room introspection over HTTP.
type RoomHandler struct {
	registry ports.RoomRegistry
	logger   *logger.ContextLogger
}

func NewRoomHandler(registry ports.RoomRegistry, log *zap.SugaredLogger) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		logger:   logger.NewContextLogger(log.Desugar()),
	}
}

// GetMembers returns the current membership of a room. Unknown rooms report
// an empty member list rather than 404; rooms exist only as memberships.
func (h *RoomHandler) GetMembers(c *gin.Context) {
	roomID := c.Param("room")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_INPUT",
			"message": err.Error(),
		})
		return
	}

	members, err := h.registry.MembersOf(c.Request.Context(), domain.RoomID(roomID))
	if err != nil {
		h.logger.LogError(c.Request.Context(), err, "member lookup failed", zap.String("room", roomID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL",
			"message": "Failed to read room membership",
		})
		return
	}

	clients := make([]string, len(members))
	for i, id := range members {
		clients[i] = string(id)
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId":  roomID,
		"clients": clients,
	})
}
