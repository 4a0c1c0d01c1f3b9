package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthHandler reports dependency health
type HealthHandler struct {
	db      *gorm.DB
	redis   redis.Cmdable
	version string
}

// NewHealthHandler creates a health handler. rdb may be nil when Redis is disabled.
func NewHealthHandler(db *gorm.DB, rdb redis.Cmdable, version string) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, version: version}
}

// Check pings every configured dependency
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]interface{}{
		"database": h.checkDatabase(ctx),
	}
	healthy := services["database"].(map[string]interface{})["healthy"].(bool)

	if h.redis != nil {
		r := h.checkRedis(ctx)
		services["redis"] = r
		healthy = healthy && r["healthy"].(bool)
	}

	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   h.version,
		"services":  services,
	}
	if !healthy {
		body["status"] = "error"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) map[string]interface{} {
	if h.db == nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   "database connection is nil",
		}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}

	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}

func (h *HealthHandler) checkRedis(ctx context.Context) map[string]interface{} {
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
	}
	return map[string]interface{}{
		"healthy": true,
		"status":  "connected",
	}
}
