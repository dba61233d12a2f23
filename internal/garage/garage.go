package garage

import "sync"

// Registry 车辆状态注册表，由上游连接器维护车辆对象
type Registry interface {
	// GetVehicle 按 VIN 查找车辆，车辆可能暂时不存在
	GetVehicle(vin string) (*Vehicle, bool)
}

// Garage Registry 的内存实现
type Garage struct {
	mu       sync.RWMutex
	vehicles map[string]*Vehicle
}

// New 创建空车库
func New() *Garage {
	return &Garage{
		vehicles: make(map[string]*Vehicle),
	}
}

// GetVehicle 按 VIN 查找车辆
func (g *Garage) GetVehicle(vin string) (*Vehicle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vehicles[vin]
	return v, ok
}

// Put 登记或替换车辆
func (g *Garage) Put(v *Vehicle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vehicles[v.VIN] = v
}

// Remove 移除车辆
func (g *Garage) Remove(vin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.vehicles, vin)
}

// List 返回当前登记的所有 VIN
func (g *Garage) List() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	vins := make([]string, 0, len(g.vehicles))
	for vin := range g.vehicles {
		vins = append(vins, vin)
	}
	return vins
}
