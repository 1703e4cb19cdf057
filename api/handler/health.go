package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"gorm.io/gorm"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db      *gorm.DB
	started time.Time
	// entries 返回在线应答表条目数
	entries func() int
}

func NewHealthHandler(db *gorm.DB, entries func() int) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now(), entries: entries}
}

// Health 数据库不可用时返回 503
func (h *HealthHandler) Health(c *gin.Context) {
	data := gin.H{
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"database": database.GetStats(h.db),
	}
	if h.entries != nil {
		data["fixtures"] = h.entries()
	}
	if err := database.Health(h.db); err != nil {
		data["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "UNHEALTHY", "message": "数据库不可用", "data": data})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "ok", "data": data})
}
