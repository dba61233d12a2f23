package telemetry

import (
	"github.com/langchou/abrpsync/internal/garage"
)

// Build 从车辆状态视图构建遥测记录。
// 纯函数：不产生副作用，数据缺失属于正常情况而非错误，对应字段省略。
func Build(v *garage.Vehicle) Record {
	record := make(Record)

	if drive := electricDrive(v.Drives); drive != nil {
		if drive.Level.Set() {
			record["soc"] = *drive.Level.Value
			if drive.Level.LastUpdated != nil {
				record["utc"] = drive.Level.LastUpdated.Unix()
			}
		}
		if drive.Range.Set() {
			record["est_battery_range"] = *drive.Range.Value
		}
	}

	if v.Odometer.Set() {
		record["odometer"] = *v.Odometer.Value
	}

	if v.Charging != nil && v.Charging.Enabled {
		buildCharging(record, v.Charging)
	}

	if v.Position != nil && v.Position.Enabled {
		buildPosition(record, v.Position)
	}

	if v.OutsideTemperature.Set() {
		record["ext_temp"] = *v.OutsideTemperature.Value
	}

	if v.Climatization != nil && v.Climatization.Enabled && v.Climatization.TargetTemperature != nil {
		record["hvac_setpoint"] = *v.Climatization.TargetTemperature
	}

	return record
}

// electricDrive 选择用作数据源的电驱动。
// 只有一个驱动且启用时无条件使用；多个驱动时选第一个启用的电驱动；都不满足返回 nil。
func electricDrive(drives []*garage.Drive) *garage.Drive {
	if len(drives) == 1 && drives[0].Enabled {
		return drives[0]
	}
	if len(drives) > 1 {
		for _, drive := range drives {
			if drive.Enabled && drive.Type == garage.DriveTypeElectric {
				return drive
			}
		}
	}
	return nil
}

func buildCharging(record Record, charging *garage.Charging) {
	switch charging.State {
	case garage.ChargingStateCharging, garage.ChargingStateConservation, garage.ChargingStateDischarging:
		record["is_charging"] = true
	case garage.ChargingStateOff, garage.ChargingStateReadyForCharging, garage.ChargingStateError:
		record["is_charging"] = false
	}

	switch charging.Type {
	case garage.ChargingTypeDC:
		record["is_dcfc"] = true
	case garage.ChargingTypeAC:
		record["is_dcfc"] = false
	}

	if charging.Power.Set() {
		// ABRP 约定充电功率为负值；放电时再次取反，最终放电为正、充电为负
		power := -*charging.Power.Value
		if charging.State == garage.ChargingStateDischarging {
			power = -power
		}
		record["power"] = power
	}
}

func buildPosition(record Record, position *garage.Position) {
	switch position.Type {
	case garage.PositionTypeParking:
		record["is_parked"] = true
	case garage.PositionTypeDriving:
		record["is_parked"] = false
	}

	// 经纬度必须成对出现
	if position.Latitude != nil && position.Longitude != nil {
		record["lat"] = *position.Latitude
		record["lon"] = *position.Longitude
	}

	if position.Altitude != nil {
		record["elevation"] = *position.Altitude
	}
	if position.Heading != nil {
		record["heading"] = *position.Heading
	}
}
