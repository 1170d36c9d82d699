package resolution

import (
	"context"
	"errors"
	"time"

	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrNoRemote 未設定遠端目錄，無法同步
var ErrNoRemote = errors.New("remote catalog not configured")

// Status 同步狀態
type Status struct {
	Mode     string   `json:"mode"`
	Pending  int      `json:"pending"`
	Mappings int      `json:"mappings"`
	Tiers    []string `json:"tiers"`
	Remote   bool     `json:"remote"`
}

// Flush 在線時送出待同步的貢獻
func (s *Service) Flush(ctx context.Context) (localstore.FlushResult, error) {
	if s.remote == nil {
		return localstore.FlushResult{}, ErrNoRemote
	}
	if !s.mode.Online() {
		return localstore.FlushResult{}, common.ErrOffline
	}
	return s.store.FlushContributions(ctx, s.remote)
}

// SetOnline 切換連線狀態；由離線轉為在線時立即同步一次
func (s *Service) SetOnline(ctx context.Context, online bool) (*localstore.FlushResult, error) {
	if !s.mode.Set(online) || !online || s.remote == nil {
		return nil, nil
	}
	result, err := s.Flush(ctx)
	return &result, err
}

// Status 目前的連線與佇列狀態
func (s *Service) Status(ctx context.Context) (Status, error) {
	pending, err := s.store.PendingCount(ctx)
	if err != nil {
		return Status{}, err
	}
	mappings, err := s.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Mode:     s.mode.String(),
		Pending:  pending,
		Mappings: mappings,
		Tiers:    s.chain.Tiers(),
		Remote:   s.remote != nil,
	}, nil
}

// RunSync 定期同步直到 ctx 結束
func (s *Service) RunSync(ctx context.Context, interval time.Duration) {
	if s.remote == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.mode.Online() {
				continue
			}
			if _, err := s.Flush(ctx); err != nil && !errors.Is(err, localstore.ErrFlushInProgress) && ctx.Err() == nil {
				common.LogWarn("定期同步失敗", zap.Error(err))
			}
		}
	}
}
