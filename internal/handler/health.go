package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	DB *gorm.DB
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
}

func (h *HealthHandler) health(c *gin.Context) {
	if h.DB != nil {
		sqldb, err := h.DB.DB()
		if err == nil {
			err = sqldb.Ping()
		}
		if err != nil {
			Error(c, http.StatusServiceUnavailable, "db unavailable", nil)
			return
		}
	}
	Ok(c, gin.H{"status": "up"}, nil)
}
