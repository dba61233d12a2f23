package telemetry

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	snapshotKeyPrefix   = "tlm:"
	nextChargeKeyPrefix = "next_charge:"
)

// Snapshot 单辆车最近一次成功发布的遥测
type Snapshot struct {
	VIN         string    `json:"vin"`
	Record      Record    `json:"record"`
	PublishedAt time.Time `json:"published_at"`
}

// Cache 按 VIN 缓存最近发布的遥测快照和下次计划充电电量。
// 仅由同步 worker 写入，读取是并发安全的。
type Cache struct {
	store *gocache.Cache
}

// NewCache 创建缓存，条目不过期
func NewCache() *Cache {
	return &Cache{
		store: gocache.New(gocache.NoExpiration, 0),
	}
}

// StoreSnapshot 记录成功发布的遥测
func (c *Cache) StoreSnapshot(vin string, record Record, publishedAt time.Time) Snapshot {
	snapshot := Snapshot{
		VIN:         vin,
		Record:      record.Clone(),
		PublishedAt: publishedAt,
	}
	c.store.Set(snapshotKeyPrefix+vin, snapshot, gocache.NoExpiration)
	return snapshot
}

// Snapshot 读取最近发布的遥测
func (c *Cache) Snapshot(vin string) (Snapshot, bool) {
	value, found := c.store.Get(snapshotKeyPrefix + vin)
	if !found {
		return Snapshot{}, false
	}
	return value.(Snapshot), true
}

// StoreNextCharge 记录下次计划充电电量，nil 表示清除
func (c *Cache) StoreNextCharge(vin string, level *float64) {
	if level == nil {
		c.store.Delete(nextChargeKeyPrefix + vin)
		return
	}
	c.store.Set(nextChargeKeyPrefix+vin, *level, gocache.NoExpiration)
}

// NextCharge 读取下次计划充电电量
func (c *Cache) NextCharge(vin string) (float64, bool) {
	value, found := c.store.Get(nextChargeKeyPrefix + vin)
	if !found {
		return 0, false
	}
	return value.(float64), true
}
