package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListModels handles GET /v1/models: a read-only projection of
// registry.ModelRegistry's aggregated catalogue, rendered in the OpenAI
// list shape by default or the Claude shape when ?format=claude is passed
// (SPEC_FULL §4 supplemented feature; not a plugin mechanism, so the
// "generic LLM router" non-goal is not violated).
func (s *Server) ListModels(c *gin.Context) {
	format := c.Query("format")
	if format == "" {
		format = "openai"
	}
	models := s.Models.GetAvailableModels(format)
	if models == nil {
		models = []map[string]any{}
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": models})
}
