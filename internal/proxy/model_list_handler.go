package proxy

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qwen-bridge/internal/models"
	"qwen-bridge/internal/response"
)

// HandleListModels serves GET /v1/models. The vendor has no model listing
// endpoint, so the configured model set is presented in the OpenAI list shape.
func (s *Server) HandleListModels(c *gin.Context) {
	created := time.Now().Unix()

	list := models.ModelList{
		Object: "list",
		Data:   make([]models.Model, 0, len(s.cfg.AvailableModels)),
	}
	for _, id := range s.cfg.AvailableModels {
		list.Data = append(list.Data, models.Model{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "qwen",
		})
	}

	response.Success(c, list)
}

// HandleHealth serves GET /health
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().Unix()})
}
