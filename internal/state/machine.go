package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
)

// 连接状态常量
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateError        = "error"
)

// 事件常量
const (
	EventAttempt    = "attempt"
	EventPushOK     = "push_ok"
	EventPushFailed = "push_failed"
	EventShutdown   = "shutdown"
)

// Machine 上游 API 连接状态机。
// 只由同步 worker 写入，任意 goroutine 可并发读取。
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	onStateChange func(from, to string)
}

// NewMachine 创建状态机，初始为 disconnected
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{
		onStateChange: onStateChange,
	}

	m.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			// 推送前：尚未连上时进入 connecting
			{Name: EventAttempt, Src: []string{StateDisconnected, StateError}, Dst: StateConnecting},

			// 推送结果
			{Name: EventPushOK, Src: []string{StateDisconnected, StateConnecting, StateError}, Dst: StateConnected},
			{Name: EventPushFailed, Src: []string{StateDisconnected, StateConnecting, StateConnected}, Dst: StateError},

			// 主动停机
			{Name: EventShutdown, Src: []string{StateConnecting, StateConnected, StateError}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 获取当前状态
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// BeginAttempt 推送尝试开始：已连接则保持，否则转入 connecting
func (m *Machine) BeginAttempt() {
	m.trigger(EventAttempt)
}

// RecordResult 按推送结果转换：成功 → connected，失败 → error
func (m *Machine) RecordResult(success bool) {
	if success {
		m.trigger(EventPushOK)
	} else {
		m.trigger(EventPushFailed)
	}
}

// Shutdown 主动停机，回到 disconnected
func (m *Machine) Shutdown() {
	m.trigger(EventShutdown)
}

func (m *Machine) trigger(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fsm.Can(event) {
		// 已处于目标状态（如 connected 下重复成功），无需转换
		return
	}
	if err := m.fsm.Event(context.Background(), event); err != nil {
		// 事件表是封闭的，Can 之后不应失败
		panic(fmt.Sprintf("connection state transition %s from %s: %v", event, m.fsm.Current(), err))
	}
}
