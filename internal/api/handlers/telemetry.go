package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListVehicles 获取跟踪的车辆列表及其最近发布状态
func (h *Handler) ListVehicles(c *gin.Context) {
	vins := h.telemetryService.TrackedVINs()

	vehicles := make([]gin.H, 0, len(vins))
	for _, vin := range vins {
		entry := gin.H{"vin": vin}
		if snapshot, ok := h.telemetryService.Snapshot(vin); ok {
			entry["published_at"] = snapshot.PublishedAt
		}
		if level, ok := h.telemetryService.NextCharge(vin); ok {
			entry["next_charge_level"] = level
		}
		vehicles = append(vehicles, entry)
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetTelemetry 获取车辆最近一次成功发布的遥测
func (h *Handler) GetTelemetry(c *gin.Context) {
	vin := c.Param("vin")

	snapshot, ok := h.telemetryService.Snapshot(vin)
	if ok {
		c.JSON(http.StatusOK, gin.H{"data": snapshot})
		return
	}

	// 内存中没有时回退到持久化的样本（例如刚重启）
	if h.telemetryRepo != nil {
		sample, err := h.telemetryRepo.GetByVIN(c.Request.Context(), vin)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"data": sample})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "No telemetry published for vehicle"})
}

// GetNextCharge 获取车辆下次计划充电电量
func (h *Handler) GetNextCharge(c *gin.Context) {
	vin := c.Param("vin")

	level, ok := h.telemetryService.NextCharge(vin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No next charge level known for vehicle"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"vin":               vin,
			"next_charge_level": level,
		},
	})
}

// GetConnectionState 获取上游连接状态
func (h *Handler) GetConnectionState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"state":   h.telemetryService.ConnectionState(),
			"healthy": h.telemetryService.Healthy(),
		},
	})
}

// GetInterval 获取当前轮询间隔
func (h *Handler) GetInterval(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"seconds": int(h.telemetryService.Interval() / time.Second),
		},
	})
}

// UpdateInterval 更新轮询间隔，下一次等待生效
func (h *Handler) UpdateInterval(c *gin.Context) {
	var req struct {
		Seconds int `json:"seconds" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	interval := time.Duration(req.Seconds) * time.Second
	if err := h.telemetryService.SetInterval(interval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Interval updated via API", zap.Duration("interval", interval))
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"seconds": req.Seconds,
		},
	})
}
