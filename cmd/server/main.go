package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/abrpsync/internal/api/abrp"
	"github.com/langchou/abrpsync/internal/api/handlers"
	"github.com/langchou/abrpsync/internal/config"
	"github.com/langchou/abrpsync/internal/garage"
	"github.com/langchou/abrpsync/internal/repository"
	"github.com/langchou/abrpsync/internal/service"
	"github.com/langchou/abrpsync/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting abrpsync",
		zap.String("port", cfg.ServerPort),
		zap.Int("vehicles", len(cfg.Tokens)),
		zap.Duration("interval", cfg.Interval))
	for _, pair := range cfg.Tokens {
		logger.Info("Tracking vehicle",
			zap.String("vin", pair.VIN),
			zap.String("token", config.RedactToken(pair.Token)))
	}

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 车辆状态注册表：由上游连接器填充
	registry := garage.New()

	// 连接数据库（可选）
	var telemetryRepo *repository.TelemetryRepository
	if cfg.DatabaseURL != "" {
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")

		telemetryRepo = repository.NewTelemetryRepository(db)
	} else {
		logger.Info("No DATABASE_URL configured, running without persistence")
	}

	// 创建 ABRP API 客户端
	abrpClient := abrp.NewClient(cfg.ABRPBaseURL)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建遥测同步服务
	telemetryService, err := service.NewTelemetryService(
		logger,
		registry,
		abrpClient,
		cfg.Tokens,
		cfg.Interval,
	)
	if err != nil {
		logger.Fatal("Failed to create telemetry service", zap.Error(err))
	}
	if telemetryRepo != nil {
		telemetryService.SetPersister(telemetryRepo)

		// 重启后用持久化样本预热缓存
		samples, err := telemetryRepo.List(ctx)
		if err != nil {
			logger.Warn("Failed to load persisted telemetry samples", zap.Error(err))
		} else {
			for _, sample := range samples {
				telemetryService.RestoreSnapshot(sample.VIN, sample.Record, sample.PublishedAt, sample.NextChargeLevel)
			}
			if len(samples) > 0 {
				logger.Info("Restored telemetry samples from database", zap.Int("count", len(samples)))
			}
		}
	}
	telemetryService.SetHub(wsHub)

	// 新连接的 WebSocket 客户端先收到当前状态
	wsHub.SetInitDataProvider(func() *ws.InitData {
		vehicles := make([]any, 0)
		for _, vin := range telemetryService.TrackedVINs() {
			if snapshot, ok := telemetryService.Snapshot(vin); ok {
				vehicles = append(vehicles, snapshot)
			}
		}
		return &ws.InitData{
			Vehicles:        vehicles,
			ConnectionState: telemetryService.ConnectionState(),
		}
	})

	// 启动同步
	if err := telemetryService.Start(ctx); err != nil {
		logger.Fatal("Failed to start telemetry service", zap.Error(err))
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		telemetryService,
		telemetryRepo,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止同步服务
	telemetryService.Stop()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool, level string) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			config.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
