package handler

import (
	"net/http"

	"github.com/aspect-build/enclaveproof/internal/engine"
	"github.com/gin-gonic/gin"
)

// HandleEngineState handles GET /v1/engine.
func HandleEngineState(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": eng.State().String()})
	}
}
