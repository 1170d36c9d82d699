package resolution

import (
	"sync/atomic"

	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// Mode 連線狀態；整個程序只有這一個判斷點
type Mode struct {
	online atomic.Bool
}

// NewMode 以指定狀態建立
func NewMode(online bool) *Mode {
	m := &Mode{}
	m.online.Store(online)
	return m
}

// Online 目前是否在線
func (m *Mode) Online() bool {
	return m.online.Load()
}

// Set 切換狀態，回傳是否真的改變
func (m *Mode) Set(online bool) bool {
	changed := m.online.CompareAndSwap(!online, online)
	if changed {
		common.LogInfo("連線狀態變更", zap.String("mode", m.String()))
	}
	return changed
}

func (m *Mode) String() string {
	if m.Online() {
		return "online"
	}
	return "offline"
}
