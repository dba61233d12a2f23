package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/langchou/abrpsync/internal/telemetry"
)

// TelemetrySample 持久化的最近样本
type TelemetrySample struct {
	VIN             string           `json:"vin"`
	Record          telemetry.Record `json:"record"`
	NextChargeLevel *float64         `json:"next_charge_level"`
	PublishedAt     time.Time        `json:"published_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TelemetryRepository 最近遥测样本仓库
type TelemetryRepository struct {
	db *DB
}

// NewTelemetryRepository 创建遥测仓库
func NewTelemetryRepository(db *DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// UpsertLatest 写入车辆最近一次成功发布的样本
func (r *TelemetryRepository) UpsertLatest(ctx context.Context, vin string, record telemetry.Record, publishedAt time.Time) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := `
		INSERT INTO telemetry_samples (vin, record, published_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (vin) DO UPDATE SET
			record = EXCLUDED.record,
			published_at = EXCLUDED.published_at,
			updated_at = NOW()
	`
	if _, err := r.db.Pool.Exec(ctx, query, vin, data, publishedAt); err != nil {
		return fmt.Errorf("upsert telemetry sample: %w", err)
	}
	return nil
}

// SetNextChargeLevel 更新车辆的下次计划充电电量，nil 表示清除
func (r *TelemetryRepository) SetNextChargeLevel(ctx context.Context, vin string, level *float64) error {
	query := `
		UPDATE telemetry_samples SET next_charge_level = $1, updated_at = NOW()
		WHERE vin = $2
	`
	if _, err := r.db.Pool.Exec(ctx, query, level, vin); err != nil {
		return fmt.Errorf("set next charge level: %w", err)
	}
	return nil
}

// GetByVIN 读取车辆最近的样本
func (r *TelemetryRepository) GetByVIN(ctx context.Context, vin string) (*TelemetrySample, error) {
	query := `
		SELECT vin, record, next_charge_level, published_at, updated_at
		FROM telemetry_samples WHERE vin = $1
	`
	sample := &TelemetrySample{}
	var data []byte
	err := r.db.Pool.QueryRow(ctx, query, vin).Scan(
		&sample.VIN,
		&data,
		&sample.NextChargeLevel,
		&sample.PublishedAt,
		&sample.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get telemetry sample by vin: %w", err)
	}
	if err := json.Unmarshal(data, &sample.Record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return sample, nil
}

// List 读取所有车辆的最近样本
func (r *TelemetryRepository) List(ctx context.Context) ([]*TelemetrySample, error) {
	query := `
		SELECT vin, record, next_charge_level, published_at, updated_at
		FROM telemetry_samples ORDER BY vin
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list telemetry samples: %w", err)
	}
	defer rows.Close()

	var samples []*TelemetrySample
	for rows.Next() {
		sample := &TelemetrySample{}
		var data []byte
		err := rows.Scan(
			&sample.VIN,
			&data,
			&sample.NextChargeLevel,
			&sample.PublishedAt,
			&sample.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan telemetry sample: %w", err)
		}
		if err := json.Unmarshal(data, &sample.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		samples = append(samples, sample)
	}

	return samples, nil
}
