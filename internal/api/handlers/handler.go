package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/abrpsync/internal/repository"
	"github.com/langchou/abrpsync/internal/telemetry"
	"github.com/langchou/abrpsync/pkg/ws"
)

// TelemetryService 遥测同步服务暴露给 HTTP 层的接口
type TelemetryService interface {
	Healthy() bool
	ConnectionState() string
	Interval() time.Duration
	SetInterval(interval time.Duration) error
	TrackedVINs() []string
	Snapshot(vin string) (telemetry.Snapshot, bool)
	NextCharge(vin string) (float64, bool)
}

// Handler HTTP 处理器
type Handler struct {
	logger           *zap.Logger
	telemetryService TelemetryService
	telemetryRepo    *repository.TelemetryRepository // 可选
	wsHub            *ws.Hub
	upgrader         websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	telemetryService TelemetryService,
	telemetryRepo *repository.TelemetryRepository,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:           logger,
		telemetryService: telemetryService,
		telemetryRepo:    telemetryRepo,
		wsHub:            wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 车辆遥测
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin/telemetry", h.GetTelemetry)
		api.GET("/vehicles/:vin/next_charge", h.GetNextCharge)

		// 同步状态
		api.GET("/connection", h.GetConnectionState)
		api.GET("/interval", h.GetInterval)
		api.PUT("/interval", h.UpdateInterval)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	if !h.telemetryService.Healthy() {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"healthy":          h.telemetryService.Healthy(),
		"connection_state": h.telemetryService.ConnectionState(),
		"ws_clients":       h.wsHub.ClientCount(),
	})
}
