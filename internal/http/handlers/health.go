package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health is GET /healthz: a liveness probe only, no dependency checks.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
