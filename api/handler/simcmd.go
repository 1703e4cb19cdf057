package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"github.com/sshcollectorpro/junosconnect/internal/model"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
	"github.com/sshcollectorpro/junosconnect/simulate"
	"gorm.io/gorm"
)

// TableSetter 接收重新加载后的应答表，通常是 *simulate.Server
type TableSetter interface {
	SetTable(*simulate.Table)
}

// SimCmdHandler 模拟命令处理器，写操作后刷新在线应答表
type SimCmdHandler struct {
	db     *gorm.DB
	target TableSetter
}

func NewSimCmdHandler(db *gorm.DB, target TableSetter) *SimCmdHandler {
	return &SimCmdHandler{db: db, target: target}
}

type simCmdRequest struct {
	Platform string `json:"platform"`
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

func (r *simCmdRequest) normalize() error {
	r.Platform = strings.TrimSpace(r.Platform)
	if r.Platform == "" {
		r.Platform = simulate.Platform
	}
	r.Command = strings.TrimSpace(r.Command)
	if r.Command == "" {
		return errors.New("command 不能为空")
	}
	if r.ExitCode < 0 || r.ExitCode > 255 {
		return errors.New("exit_code 取值范围 0-255")
	}
	return nil
}

// CreateSimCmd 创建模拟命令
func (h *SimCmdHandler) CreateSimCmd(c *gin.Context) {
	var req simCmdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PARAMS", "message": "参数错误: " + err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_FIELDS", "message": err.Error()})
		return
	}

	row := model.SimCommand{Platform: req.Platform, Command: req.Command, Output: req.Output, ExitCode: req.ExitCode}
	if err := database.WithRetry(h.db, func(d *gorm.DB) error { return d.Create(&row).Error }, 6, 100*time.Millisecond); err != nil {
		logger.Errorf("create sim command failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "CREATE_FAILED", "message": "创建失败: " + err.Error()})
		return
	}
	h.reload(row.Platform)
	c.JSON(http.StatusCreated, gin.H{"code": "SUCCESS", "message": "创建成功", "data": row})
}

// ListSimCmds 列出模拟命令，默认平台 junos
func (h *SimCmdHandler) ListSimCmds(c *gin.Context) {
	platform := strings.TrimSpace(c.DefaultQuery("platform", simulate.Platform))
	var items []model.SimCommand
	if err := h.db.Where("platform = ?", platform).Order("id ASC").Find(&items).Error; err != nil {
		logger.Errorf("list sim commands failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "LIST_FAILED", "message": "查询失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "查询成功", "data": items})
}

// UpdateSimCmd 更新模拟命令
func (h *SimCmdHandler) UpdateSimCmd(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req simCmdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PARAMS", "message": "参数错误: " + err.Error()})
		return
	}
	if err := req.normalize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_FIELDS", "message": err.Error()})
		return
	}

	var existing model.SimCommand
	if err := h.db.First(&existing, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "记录不存在"})
		return
	}
	oldPlatform := existing.Platform
	existing.Platform = req.Platform
	existing.Command = req.Command
	existing.Output = req.Output
	existing.ExitCode = req.ExitCode
	if err := database.WithRetry(h.db, func(d *gorm.DB) error { return d.Save(&existing).Error }, 6, 100*time.Millisecond); err != nil {
		logger.Errorf("update sim command failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "UPDATE_FAILED", "message": "更新失败: " + err.Error()})
		return
	}
	h.reload(oldPlatform)
	h.reload(existing.Platform)
	c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "更新成功", "data": existing})
}

// DeleteSimCmd 删除模拟命令
func (h *SimCmdHandler) DeleteSimCmd(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var existing model.SimCommand
	if err := h.db.First(&existing, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "记录不存在"})
		return
	}
	if err := database.WithRetry(h.db, func(d *gorm.DB) error { return d.Delete(&model.SimCommand{}, id).Error }, 6, 100*time.Millisecond); err != nil {
		logger.Errorf("delete sim command failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "DELETE_FAILED", "message": "删除失败: " + err.Error()})
		return
	}
	h.reload(existing.Platform)
	c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "删除成功", "data": gin.H{"id": id}})
}

// reload 仅 junos 平台的记录影响在线应答表
func (h *SimCmdHandler) reload(platform string) {
	if h.target == nil || platform != simulate.Platform {
		return
	}
	table, err := simulate.LoadTableFromDB(h.db, simulate.Platform)
	if err != nil {
		logger.Warnf("reload sim table failed: %v", err)
		return
	}
	h.target.SetTable(table)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ID", "message": "ID格式错误"})
		return 0, false
	}
	return uint(id), true
}
