package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/abrpsync/internal/api/abrp"
	"github.com/langchou/abrpsync/internal/config"
	"github.com/langchou/abrpsync/internal/garage"
	"github.com/langchou/abrpsync/internal/state"
	"github.com/langchou/abrpsync/internal/telemetry"
	"github.com/langchou/abrpsync/pkg/ws"
)

// TelemetryPersister 最近样本的可选持久化
type TelemetryPersister interface {
	UpsertLatest(ctx context.Context, vin string, record telemetry.Record, publishedAt time.Time) error
	SetNextChargeLevel(ctx context.Context, vin string, level *float64) error
}

// TelemetryService 遥测同步服务。
// 单个后台 worker 周期性为每辆配置的车辆构建快照、推送到 ABRP 并查询下次充电目标。
type TelemetryService struct {
	logger    *zap.Logger
	registry  garage.Registry
	client    *abrp.Client
	cache     *telemetry.Cache
	connState *state.Machine
	persister TelemetryPersister // 可选
	wsHub     *ws.Hub            // 可选

	tokens []config.TokenPair

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	interval atomic.Int64 // 纳秒，随时可读写，每个 tick 睡眠前读取
	healthy  atomic.Bool

	// 连续推送失败计数，仅 worker 访问，只影响日志级别
	subsequentErrors int
}

// NewTelemetryService 创建遥测同步服务，间隔低于最小值视为配置错误
func NewTelemetryService(
	logger *zap.Logger,
	registry garage.Registry,
	client *abrp.Client,
	tokens []config.TokenPair,
	interval time.Duration,
) (*TelemetryService, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no vehicle tokens configured")
	}
	if interval < config.MinInterval {
		return nil, fmt.Errorf("interval must be at least %s, got %s", config.MinInterval, interval)
	}

	svc := &TelemetryService{
		logger:   logger,
		registry: registry,
		client:   client,
		cache:    telemetry.NewCache(),
		tokens:   tokens,
		stopCh:   make(chan struct{}),
	}
	svc.interval.Store(int64(interval))
	svc.healthy.Store(true)

	svc.connState = state.NewMachine(svc.onConnectionStateChange)

	return svc, nil
}

// SetPersister 设置最近样本持久化（启动前调用）
func (s *TelemetryService) SetPersister(p TelemetryPersister) {
	s.persister = p
}

// SetHub 设置 WebSocket Hub（启动前调用）
func (s *TelemetryService) SetHub(hub *ws.Hub) {
	s.wsHub = hub
}

// RestoreSnapshot 进程重启后用持久化的最近样本预热缓存（启动前调用）。
// 恢复的快照只进缓存，不重新推送
func (s *TelemetryService) RestoreSnapshot(vin string, record telemetry.Record, publishedAt time.Time, nextCharge *float64) {
	s.cache.StoreSnapshot(vin, record, publishedAt)
	s.cache.StoreNextCharge(vin, nextCharge)
}

// Start 启动服务
func (s *TelemetryService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Telemetry service already running, skipping start")
		return nil
	}
	// 重新初始化 stopCh（防止重复启动问题）
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting telemetry service",
		zap.Int("vehicles", len(s.tokens)),
		zap.Duration("interval", s.Interval()))

	s.wg.Add(1)
	go s.syncLoop(ctx)

	return nil
}

// Stop 停止服务，阻塞直到 worker 退出
func (s *TelemetryService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping telemetry service")

	close(s.stopCh)
	s.wg.Wait()

	s.connState.Shutdown()
	s.logger.Info("Telemetry service stopped")
}

// Healthy 后台循环是否健康（tick 内部致命错误后为 false）
func (s *TelemetryService) Healthy() bool {
	return s.healthy.Load()
}

// ConnectionState 当前上游连接状态
func (s *TelemetryService) ConnectionState() string {
	return s.connState.Current()
}

// Interval 当前轮询间隔
func (s *TelemetryService) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetInterval 更新轮询间隔，下一次睡眠生效
func (s *TelemetryService) SetInterval(interval time.Duration) error {
	if interval < config.MinInterval {
		return fmt.Errorf("interval must be at least %s, got %s", config.MinInterval, interval)
	}
	s.interval.Store(int64(interval))
	s.logger.Info("Telemetry interval updated", zap.Duration("interval", interval))
	return nil
}

// TrackedVINs 配置的车辆 VIN 列表（按配置顺序）
func (s *TelemetryService) TrackedVINs() []string {
	vins := make([]string, len(s.tokens))
	for i, pair := range s.tokens {
		vins[i] = pair.VIN
	}
	return vins
}

// Snapshot 车辆最近一次成功发布的遥测
func (s *TelemetryService) Snapshot(vin string) (telemetry.Snapshot, bool) {
	return s.cache.Snapshot(vin)
}

// NextCharge 车辆最近已知的下次计划充电电量
func (s *TelemetryService) NextCharge(vin string) (float64, bool) {
	return s.cache.NextCharge(vin)
}

// syncLoop 后台同步循环，处理所有车辆后睡眠一个间隔，直到被停止
func (s *TelemetryService) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.runTick(ctx)

		timer := time.NewTimer(s.Interval())
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runTick 执行一轮同步。
// tick 内部的意外错误是致命的：标记不健康并继续抛出，
// 宁可停止遥测上报也不要带着损坏的状态继续运行
func (s *TelemetryService) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.healthy.Store(false)
			s.logger.Error("Telemetry loop crashed, marking unhealthy", zap.Any("panic", r))
			panic(r)
		}
	}()

	s.syncAllVehicles(ctx)
}

// syncAllVehicles 按配置顺序处理所有车辆
func (s *TelemetryService) syncAllVehicles(ctx context.Context) {
	for _, pair := range s.tokens {
		s.syncVehicle(ctx, pair.VIN, pair.Token)
	}
}

// syncVehicle 同步单辆车：构建快照、推送、查询下次充电目标
func (s *TelemetryService) syncVehicle(ctx context.Context, vin, token string) {
	vehicle, ok := s.registry.GetVehicle(vin)
	if !ok {
		// 车辆可能暂时不在注册表中，静默跳过
		s.logger.Debug("Vehicle not in registry, skipping", zap.String("vin", vin))
		return
	}

	if !vehicle.ConnectorsHealthy() {
		// 连接器不健康时数据可能残缺，本 tick 整体跳过，不发送部分遥测
		s.logger.Error("Vehicle connector unhealthy, skipping telemetry", zap.String("vin", vin))
		return
	}

	record := telemetry.Build(vehicle)

	s.connState.BeginAttempt()
	result := s.client.Push(ctx, token, record)
	s.handlePushResult(ctx, vin, record, result)

	// 推送失败也照常查询下次充电目标
	s.fetchNextCharge(ctx, vin, token, vehicle)
}

// handlePushResult 处理推送终态：更新连接状态、失败计数、缓存与持久化
func (s *TelemetryService) handlePushResult(ctx context.Context, vin string, record telemetry.Record, result abrp.PushResult) {
	if result.Success() {
		s.subsequentErrors = 0
		s.connState.RecordResult(true)

		snapshot := s.cache.StoreSnapshot(vin, record, time.Now())

		if s.persister != nil {
			if err := s.persister.UpsertLatest(ctx, vin, record, snapshot.PublishedAt); err != nil {
				s.logger.Error("Failed to persist telemetry sample", zap.Error(err), zap.String("vin", vin))
			}
		}
		if s.wsHub != nil {
			s.wsHub.BroadcastTelemetry(snapshot)
		}

		s.logger.Debug("Published telemetry",
			zap.String("vin", vin),
			zap.Int("fields", len(record)))
	} else {
		s.connState.RecordResult(false)

		// 首次失败告警，连续失败升级为错误
		fields := []zap.Field{
			zap.String("vin", vin),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(result.Err),
		}
		if s.subsequentErrors > 0 {
			s.logger.Error("ABRP send telemetry failed", fields...)
		} else {
			s.logger.Warn("ABRP send telemetry failed, will try again next tick", fields...)
		}
		s.subsequentErrors++
	}

	if len(result.Missing) > 0 {
		s.logger.Info("ABRP reported missing fields",
			zap.String("vin", vin),
			zap.Strings("missing", result.Missing))
	}
}

// fetchNextCharge 查询并更新下次计划充电电量，失败时清除已知值
func (s *TelemetryService) fetchNextCharge(ctx context.Context, vin, token string, vehicle *garage.Vehicle) {
	level, err := s.client.FetchNextCharge(ctx, token)
	if err != nil {
		s.logger.Debug("Failed to fetch next charge", zap.Error(err), zap.String("vin", vin))
		level = nil
	}

	vehicle.SetNextChargeLevel(level)
	s.cache.StoreNextCharge(vin, level)

	if s.persister != nil {
		if err := s.persister.SetNextChargeLevel(ctx, vin, level); err != nil {
			s.logger.Error("Failed to persist next charge level", zap.Error(err), zap.String("vin", vin))
		}
	}
	if s.wsHub != nil && level != nil {
		s.wsHub.BroadcastNextCharge(map[string]any{
			"vin":               vin,
			"next_charge_level": *level,
		})
	}
}

// onConnectionStateChange 连接状态变化回调
func (s *TelemetryService) onConnectionStateChange(from, to string) {
	s.logger.Info("Connection state changed", zap.String("from", from), zap.String("to", to))
	if s.wsHub != nil {
		s.wsHub.BroadcastConnectionState(from, to)
	}
}
