package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrFlushInProgress 已有另一個 flush 正在執行
var ErrFlushInProgress = errors.New("contribution flush already in progress")

// Submitter 接收貢獻的遠端端點，必須以 (normalized_name, store_id) 冪等 upsert
type Submitter interface {
	SubmitContribution(ctx context.Context, c common.Contribution) error
}

// FlushResult 單次 flush 的結果
type FlushResult struct {
	Delivered int `json:"delivered"`
	Remaining int `json:"remaining"`
}

// QueueContribution 將分類加入待同步佇列
//
// 相同 (normalized_name, store_id) 只保留最新內容，並維持原本的排隊位置。
func (s *Store) QueueContribution(ctx context.Context, m common.Mapping) (common.Contribution, error) {
	c := common.Contribution{
		ID:         common.GenerateUUID(),
		Mapping:    m,
		EnqueuedAt: s.now(),
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return c, fmt.Errorf("encode contribution: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO contributions (id, normalized_name, store_id, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name, store_id) DO UPDATE SET
			id = excluded.id,
			payload = excluded.payload,
			attempts = 0,
			last_error = ''`,
		c.ID, m.NormalizedName, m.StoreID, string(payload), c.EnqueuedAt.Format(time.RFC3339Nano))
	if err != nil {
		return c, fmt.Errorf("queue contribution: %w", err)
	}
	return c, nil
}

// Pending 依排隊順序列出待同步的貢獻
func (s *Store) Pending(ctx context.Context) ([]common.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload, attempts, last_error, enqueued_at
		FROM contributions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var result []common.Contribution
	for rows.Next() {
		var (
			c          common.Contribution
			payload    string
			enqueuedAt string
		)
		if err := rows.Scan(&c.ID, &payload, &c.Attempts, &c.LastError, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &c.Mapping); err != nil {
			return nil, fmt.Errorf("decode contribution %s: %w", c.ID, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			c.EnqueuedAt = t
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// PendingCount 待同步數量
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contributions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contributions: %w", err)
	}
	return n, nil
}

// FlushContributions 依序提交待同步的貢獻
//
// 每筆在遠端確認後才刪除；遇到第一個失敗即停止，記錄嘗試次數與錯誤，其餘保留到下次。
// 同一時間只允許一個 flush，重複呼叫回傳 ErrFlushInProgress。
func (s *Store) FlushContributions(ctx context.Context, submitter Submitter) (FlushResult, error) {
	select {
	case s.flushing <- struct{}{}:
		defer func() { <-s.flushing }()
	default:
		return FlushResult{}, ErrFlushInProgress
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		return FlushResult{}, err
	}

	var result FlushResult
	for i, c := range pending {
		if err := ctx.Err(); err != nil {
			result.Remaining = len(pending) - i
			return result, err
		}

		if err := submitter.SubmitContribution(ctx, c); err != nil {
			result.Remaining = len(pending) - i
			s.recordFailure(c.ID, err)
			common.LogWarn("貢獻同步失敗，保留於佇列",
				zap.String("id", c.ID),
				zap.String("ingredient", c.Mapping.NormalizedName),
				zap.Int("attempts", c.Attempts+1),
				zap.Error(err),
			)
			return result, fmt.Errorf("%w: %v", common.ErrSyncDelivery, err)
		}

		// 只刪除已送出的版本；送出期間若被新內容取代，新的 id 會留在佇列
		if _, err := s.db.ExecContext(ctx, `DELETE FROM contributions WHERE id = ?`, c.ID); err != nil {
			result.Remaining = len(pending) - i
			return result, fmt.Errorf("dequeue contribution %s: %w", c.ID, err)
		}
		result.Delivered++
	}

	if result.Delivered > 0 {
		common.LogInfo("同步完成", zap.Int("delivered", result.Delivered))
	}
	return result, nil
}

func (s *Store) recordFailure(id string, cause error) {
	// 使用獨立 context，呼叫端取消時仍要記下失敗
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `UPDATE contributions SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause.Error(), id); err != nil {
		common.LogError("記錄同步失敗時發生錯誤", zap.String("id", id), zap.Error(err))
	}
}
