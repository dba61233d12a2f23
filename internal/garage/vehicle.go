package garage

import (
	"sync"
	"time"
)

// DriveType 驱动类型
type DriveType string

const (
	DriveTypeElectric   DriveType = "electric"
	DriveTypeCombustion DriveType = "combustion"
	DriveTypeUnknown    DriveType = "unknown"
)

// ChargingState 充电状态
type ChargingState string

const (
	ChargingStateOff              ChargingState = "off"
	ChargingStateReadyForCharging ChargingState = "ready_for_charging"
	ChargingStateCharging         ChargingState = "charging"
	ChargingStateConservation     ChargingState = "conservation"
	ChargingStateDischarging      ChargingState = "discharging"
	ChargingStateError            ChargingState = "error"
	ChargingStateUnknown          ChargingState = "unknown"
)

// ChargingType 充电类型（交流/直流）
type ChargingType string

const (
	ChargingTypeAC      ChargingType = "ac"
	ChargingTypeDC      ChargingType = "dc"
	ChargingTypeUnknown ChargingType = "unknown"
)

// PositionType 位置类型
type PositionType string

const (
	PositionTypeParking PositionType = "parking"
	PositionTypeDriving PositionType = "driving"
	PositionTypeUnknown PositionType = "unknown"
)

// FloatAttribute 可选的数值属性，disabled 或 Value 为 nil 表示无数据
type FloatAttribute struct {
	Enabled bool
	Value   *float64
}

// Set 返回属性是否启用且有值
func (a FloatAttribute) Set() bool {
	return a.Enabled && a.Value != nil
}

// LevelAttribute 带更新时间戳的电量属性
type LevelAttribute struct {
	Enabled     bool
	Value       *float64
	LastUpdated *time.Time
}

// Set 返回属性是否启用且有值
func (a LevelAttribute) Set() bool {
	return a.Enabled && a.Value != nil
}

// Drive 车辆的一个驱动单元
type Drive struct {
	Enabled bool
	Type    DriveType
	Level   LevelAttribute
	Range   FloatAttribute
}

// Charging 充电信息
type Charging struct {
	Enabled bool
	State   ChargingState
	Type    ChargingType
	Power   FloatAttribute
}

// Position 位置信息，未知坐标为 nil
type Position struct {
	Enabled   bool
	Type      PositionType
	Latitude  *float64
	Longitude *float64
	Altitude  *float64
	Heading   *float64
}

// Climatization 空调/温控信息
type Climatization struct {
	Enabled           bool
	TargetTemperature *float64
}

// Connector 管理车辆的上游连接器，报告自身健康状态
type Connector interface {
	Healthy() bool
}

// Vehicle 车辆状态视图
type Vehicle struct {
	VIN                string
	Drives             []*Drive
	Odometer           FloatAttribute
	Charging           *Charging
	Position           *Position
	OutsideTemperature FloatAttribute
	Climatization      *Climatization
	Connectors         []Connector

	mu              sync.RWMutex
	nextChargeLevel *float64
}

// ConnectorsHealthy 所有管理连接器是否都健康
func (v *Vehicle) ConnectorsHealthy() bool {
	for _, c := range v.Connectors {
		if !c.Healthy() {
			return false
		}
	}
	return true
}

// SetNextChargeLevel 更新下次计划充电目标电量，nil 表示清除
func (v *Vehicle) SetNextChargeLevel(level *float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextChargeLevel = level
}

// NextChargeLevel 读取下次计划充电目标电量
func (v *Vehicle) NextChargeLevel() *float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nextChargeLevel
}
