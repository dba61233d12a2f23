package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/langchou/abrpsync/internal/garage"
)

func floatPtr(v float64) *float64 { return &v }

func electricVehicle(vin string) *garage.Vehicle {
	lastUpdated := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &garage.Vehicle{
		VIN: vin,
		Drives: []*garage.Drive{
			{
				Enabled: true,
				Type:    garage.DriveTypeElectric,
				Level: garage.LevelAttribute{
					Enabled:     true,
					Value:       floatPtr(72),
					LastUpdated: &lastUpdated,
				},
				Range: garage.FloatAttribute{Enabled: true, Value: floatPtr(310)},
			},
		},
		Odometer: garage.FloatAttribute{Enabled: true, Value: floatPtr(15234)},
	}
}

func TestBuildBasicScenario(t *testing.T) {
	vehicle := electricVehicle("VIN123")

	record := Build(vehicle)

	expected := Record{
		"soc":               72.0,
		"utc":               time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).Unix(),
		"est_battery_range": 310.0,
		"odometer":          15234.0,
	}
	assert.Equal(t, expected, record)
}

func TestBuildNoEnabledElectricDrive(t *testing.T) {
	testCases := []struct {
		name   string
		drives []*garage.Drive
	}{
		{
			name:   "no drives",
			drives: nil,
		},
		{
			name: "single disabled drive",
			drives: []*garage.Drive{
				{Enabled: false, Type: garage.DriveTypeElectric,
					Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(50)}},
			},
		},
		{
			name: "multiple drives, none electric",
			drives: []*garage.Drive{
				{Enabled: true, Type: garage.DriveTypeCombustion,
					Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(50)}},
				{Enabled: true, Type: garage.DriveTypeCombustion,
					Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(60)}},
			},
		},
		{
			name: "multiple drives, electric one disabled",
			drives: []*garage.Drive{
				{Enabled: true, Type: garage.DriveTypeCombustion},
				{Enabled: false, Type: garage.DriveTypeElectric,
					Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(50)}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := Build(&garage.Vehicle{VIN: "VIN1", Drives: tc.drives})
			assert.NotContains(t, record, "soc")
			assert.NotContains(t, record, "utc")
			assert.NotContains(t, record, "est_battery_range")
		})
	}
}

func TestBuildSingleDriveUsedUnconditionally(t *testing.T) {
	// 只有一个驱动且启用时无条件使用，即使不是电驱动
	vehicle := &garage.Vehicle{
		VIN: "VIN1",
		Drives: []*garage.Drive{
			{
				Enabled: true,
				Type:    garage.DriveTypeCombustion,
				Level:   garage.LevelAttribute{Enabled: true, Value: floatPtr(42)},
			},
		},
	}

	record := Build(vehicle)
	assert.Equal(t, 42.0, record["soc"])
}

func TestBuildSelectsFirstEnabledElectricDrive(t *testing.T) {
	vehicle := &garage.Vehicle{
		VIN: "VIN1",
		Drives: []*garage.Drive{
			{Enabled: true, Type: garage.DriveTypeCombustion,
				Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(90)}},
			{Enabled: true, Type: garage.DriveTypeElectric,
				Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(55)}},
			{Enabled: true, Type: garage.DriveTypeElectric,
				Level: garage.LevelAttribute{Enabled: true, Value: floatPtr(66)}},
		},
	}

	record := Build(vehicle)
	assert.Equal(t, 55.0, record["soc"])
}

func TestBuildChargingStateMapping(t *testing.T) {
	testCases := []struct {
		state    garage.ChargingState
		expected any // nil 表示字段省略
	}{
		{garage.ChargingStateCharging, true},
		{garage.ChargingStateConservation, true},
		{garage.ChargingStateDischarging, true},
		{garage.ChargingStateOff, false},
		{garage.ChargingStateReadyForCharging, false},
		{garage.ChargingStateError, false},
		{garage.ChargingStateUnknown, nil},
	}

	for _, tc := range testCases {
		t.Run(string(tc.state), func(t *testing.T) {
			vehicle := &garage.Vehicle{
				VIN:      "VIN1",
				Charging: &garage.Charging{Enabled: true, State: tc.state},
			}
			record := Build(vehicle)

			if tc.expected == nil {
				assert.NotContains(t, record, "is_charging")
			} else {
				assert.Equal(t, tc.expected, record["is_charging"])
			}
		})
	}
}

func TestBuildChargingTypeMapping(t *testing.T) {
	testCases := []struct {
		chargingType garage.ChargingType
		expected     any
	}{
		{garage.ChargingTypeDC, true},
		{garage.ChargingTypeAC, false},
		{garage.ChargingTypeUnknown, nil},
	}

	for _, tc := range testCases {
		t.Run(string(tc.chargingType), func(t *testing.T) {
			vehicle := &garage.Vehicle{
				VIN:      "VIN1",
				Charging: &garage.Charging{Enabled: true, State: garage.ChargingStateCharging, Type: tc.chargingType},
			}
			record := Build(vehicle)

			if tc.expected == nil {
				assert.NotContains(t, record, "is_dcfc")
			} else {
				assert.Equal(t, tc.expected, record["is_dcfc"])
			}
		})
	}
}

func TestBuildPowerSign(t *testing.T) {
	// 充电功率取反上报；放电时再次取反
	charging := &garage.Vehicle{
		VIN: "VIN1",
		Charging: &garage.Charging{
			Enabled: true,
			State:   garage.ChargingStateCharging,
			Power:   garage.FloatAttribute{Enabled: true, Value: floatPtr(5.0)},
		},
	}
	assert.Equal(t, -5.0, Build(charging)["power"])

	discharging := &garage.Vehicle{
		VIN: "VIN1",
		Charging: &garage.Charging{
			Enabled: true,
			State:   garage.ChargingStateDischarging,
			Power:   garage.FloatAttribute{Enabled: true, Value: floatPtr(5.0)},
		},
	}
	assert.Equal(t, 5.0, Build(discharging)["power"])
}

func TestBuildPositionMapping(t *testing.T) {
	vehicle := &garage.Vehicle{
		VIN: "VIN1",
		Position: &garage.Position{
			Enabled:   true,
			Type:      garage.PositionTypeParking,
			Latitude:  floatPtr(52.52),
			Longitude: floatPtr(13.405),
			Altitude:  floatPtr(34),
			Heading:   floatPtr(270),
		},
	}

	record := Build(vehicle)
	assert.Equal(t, true, record["is_parked"])
	assert.Equal(t, 52.52, record["lat"])
	assert.Equal(t, 13.405, record["lon"])
	assert.Equal(t, 34.0, record["elevation"])
	assert.Equal(t, 270.0, record["heading"])
}

func TestBuildLatitudeLongitudeOnlyAsPair(t *testing.T) {
	vehicle := &garage.Vehicle{
		VIN: "VIN1",
		Position: &garage.Position{
			Enabled:  true,
			Type:     garage.PositionTypeDriving,
			Latitude: floatPtr(52.52),
			// 无经度
		},
	}

	record := Build(vehicle)
	assert.NotContains(t, record, "lat")
	assert.NotContains(t, record, "lon")
	assert.Equal(t, false, record["is_parked"])
}

func TestBuildTemperatureFields(t *testing.T) {
	vehicle := &garage.Vehicle{
		VIN:                "VIN1",
		OutsideTemperature: garage.FloatAttribute{Enabled: true, Value: floatPtr(21.5)},
		Climatization: &garage.Climatization{
			Enabled:           true,
			TargetTemperature: floatPtr(19),
		},
	}

	record := Build(vehicle)
	assert.Equal(t, 21.5, record["ext_temp"])
	assert.Equal(t, 19.0, record["hvac_setpoint"])
}

func TestBuildEmptyVehicle(t *testing.T) {
	record := Build(&garage.Vehicle{VIN: "VIN1"})
	assert.Empty(t, record)
}

func TestBuildIdempotent(t *testing.T) {
	vehicle := electricVehicle("VIN123")

	first := Build(vehicle)
	second := Build(vehicle)
	assert.Equal(t, first, second)
}
