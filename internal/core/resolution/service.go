// Package resolution 把分類鏈、本地快取與同步佇列組合成單一的 Resolve 入口
package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingredient-engine/internal/core/classify"
	"ingredient-engine/internal/core/ingredient"
	"ingredient-engine/internal/core/localstore"
	"ingredient-engine/internal/core/vector"
	"ingredient-engine/internal/pkg/common"

	"go.uber.org/zap"
)

const (
	// AisleOffline 離線且無法分類時的走道名稱
	AisleOffline = "Unclassified (offline)"
	// AisleUnclassified 在線但所有層級都未命中
	AisleUnclassified = "Unclassified"

	writeTimeout = 3 * time.Second
)

// Remote 遠端目錄的寫入介面，由 *catalog.Client 實作
type Remote interface {
	Upsert(ctx context.Context, m common.Mapping) error
	SubmitContribution(ctx context.Context, c common.Contribution) error
}

// Request 單一食材的分類請求
type Request struct {
	Name    string `json:"name" binding:"required"`
	StoreID string `json:"store_id"`
	ChainID string `json:"chain_id"`
	// SkipAI 略過 AI 層級，由呼叫端另行批次處理
	SkipAI bool `json:"-"`
}

// Resolution 分類結果；未命中時仍會回傳 unclassified 結果
type Resolution struct {
	Name           string          `json:"name"`
	NormalizedName string          `json:"normalized_name"`
	Category       common.Category `json:"category"`
	Aisle          string          `json:"aisle"`
	Confidence     float64         `json:"confidence"`
	Source         classify.Source `json:"source"`
	StoreID        string          `json:"store_id,omitempty"`
	Warning        string          `json:"warning,omitempty"`
}

// Resolved 是否由任一層級分類成功
func (r Resolution) Resolved() bool {
	return r.Source != classify.SourceUnclassified && r.Source != classify.SourceOffline
}

// Service 分類解析服務
type Service struct {
	chain       *classify.Chain
	store       *localstore.Store
	mode        *Mode
	remote      Remote
	embedder    classify.Embedder
	itemTimeout time.Duration
}

// Option 設定 Service
type Option func(*Service)

// WithRemote 啟用遠端寫回與同步
func WithRemote(r Remote) Option {
	return func(s *Service) { s.remote = r }
}

// WithEmbedder 寫回本地快取時一併計算向量
func WithEmbedder(e classify.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithItemTimeout 單一食材的總時間上限
func WithItemTimeout(d time.Duration) Option {
	return func(s *Service) { s.itemTimeout = d }
}

// NewService 建立分類解析服務
func NewService(chain *classify.Chain, store *localstore.Store, mode *Mode, opts ...Option) *Service {
	s := &Service{chain: chain, store: store, mode: mode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode 連線狀態
func (s *Service) Mode() *Mode {
	return s.mode
}

// Generation 本地分類的版本，分類有變動時遞增
func (s *Service) Generation() uint64 {
	return s.store.Generation()
}

// Resolve 依序嘗試各層級分類單一食材
//
// 網路層級命中時寫回本地快取並加入同步佇列；全部未命中時回傳 unclassified（離線時為 offline）。
// 只有輸入無效時才回傳錯誤。
func (s *Service) Resolve(ctx context.Context, req Request) (Resolution, error) {
	key := ingredient.Normalize(req.Name)
	if key == "" {
		return Resolution{}, common.NewValidationError("ingredient name is empty")
	}
	q := classify.Query{Key: key, DisplayName: req.Name, StoreID: req.StoreID, ChainID: req.ChainID}

	if s.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()
	}

	opts := classify.Options{Offline: !s.mode.Online()}
	if req.SkipAI {
		opts.Skip = []string{classify.AITierName}
	}

	res, err := s.chain.Resolve(ctx, q, opts)
	if res == nil {
		return s.unresolved(q, err, opts.Offline), nil
	}
	if res.Source.FromNetwork() {
		s.remember(ctx, q, res.Mapping, res.Source)
	}
	return toResolution(q, res.Mapping, res.Source), nil
}

// Remember 記錄呼叫端自行取得的分類（例如批次 AI 結果），流程與網路層級命中相同
func (s *Service) Remember(ctx context.Context, req Request, m common.Mapping, source classify.Source) Resolution {
	q := classify.Query{Key: ingredient.Normalize(req.Name), DisplayName: req.Name, StoreID: req.StoreID, ChainID: req.ChainID}
	m.NormalizedName = q.Key
	s.remember(ctx, q, m, source)
	return toResolution(q, m, source)
}

// Unresolved 產生未分類結果
func (s *Service) Unresolved(req Request, cause error) Resolution {
	q := classify.Query{Key: ingredient.Normalize(req.Name), DisplayName: req.Name, StoreID: req.StoreID, ChainID: req.ChainID}
	return s.unresolved(q, cause, !s.mode.Online())
}

func toResolution(q classify.Query, m common.Mapping, source classify.Source) Resolution {
	name := q.DisplayName
	if name == "" {
		name = m.DisplayName
	}
	return Resolution{
		Name:           name,
		NormalizedName: q.Key,
		Category:       m.Department,
		Aisle:          m.Zone,
		Confidence:     m.Confidence,
		Source:         source,
		StoreID:        q.StoreID,
	}
}

func (s *Service) unresolved(q classify.Query, cause error, offline bool) Resolution {
	r := Resolution{
		Name:           q.DisplayName,
		NormalizedName: q.Key,
		Category:       common.CategoryOther,
		Aisle:          AisleUnclassified,
		Source:         classify.SourceUnclassified,
		StoreID:        q.StoreID,
	}
	if offline {
		r.Aisle = AisleOffline
		r.Source = classify.SourceOffline
	}
	if rejected, ok := common.AsUpstreamRejected(cause); ok {
		r.Warning = rejected.UserMessage()
	}

	fields := []zap.Field{zap.String("ingredient", q.Key), zap.String("source", string(r.Source))}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if errors.Is(cause, common.ErrUpstreamTimeout) {
		common.LogWarn("食材分類逾時", fields...)
	} else {
		common.LogDebug("食材未分類", fields...)
	}
	return r
}

// remember 寫回本地快取、遠端目錄（僅 AI 結果）並加入同步佇列；失敗只記錄
func (s *Service) remember(ctx context.Context, q classify.Query, m common.Mapping, source classify.Source) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if m.DisplayName == "" {
		m.DisplayName = q.DisplayName
	}
	s.attachEmbedding(ctx, &m)

	if err := s.store.Put(ctx, m); err != nil {
		logWriteFailure("local", q.Key, err)
	}
	if source == classify.SourceLLM && s.remote != nil && s.mode.Online() {
		if err := s.remote.Upsert(ctx, m); err != nil {
			logWriteFailure("catalog", q.Key, err)
		}
	}
	if _, err := s.store.QueueContribution(ctx, m); err != nil {
		logWriteFailure("outbox", q.Key, err)
	}
}

func (s *Service) attachEmbedding(ctx context.Context, m *common.Mapping) {
	if s.embedder == nil || len(m.Embedding) > 0 {
		return
	}
	emb, err := s.embedder.Embed(ctx, m.NormalizedName)
	if err != nil {
		common.LogDebug("向量計算失敗，略過", zap.String("ingredient", m.NormalizedName), zap.Error(err))
		return
	}
	m.Embedding = vector.Quantize(emb, vector.DefaultScale)
}

func logWriteFailure(target, key string, err error) {
	common.LogWarn("寫回失敗",
		zap.String("target", target),
		zap.String("ingredient", key),
		zap.Error(fmt.Errorf("%w: %v", common.ErrCacheWriteFailure, err)),
	)
}

// TagRequest 使用者手動標記
type TagRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category" binding:"required"`
	Aisle    string `json:"aisle"`
	StoreID  string `json:"store_id"`
	ChainID  string `json:"chain_id"`
}

// Tag 儲存手動分類並加入同步佇列；手動標記的信心度固定為 1
func (s *Service) Tag(ctx context.Context, req TagRequest) (common.Mapping, error) {
	key := ingredient.Normalize(req.Name)
	if key == "" {
		return common.Mapping{}, common.NewValidationError("ingredient name is empty")
	}
	category, ok := common.ParseCategory(req.Category)
	if !ok {
		return common.Mapping{}, common.NewValidationError(fmt.Sprintf("unknown category %q", req.Category))
	}

	m := common.Mapping{
		NormalizedName: key,
		DisplayName:    req.Name,
		Department:     category,
		Zone:           req.Aisle,
		Confidence:     1,
		Source:         common.ProvenanceManual,
		StoreID:        req.StoreID,
		ChainID:        req.ChainID,
	}
	s.attachEmbedding(ctx, &m)

	if err := s.store.Put(ctx, m); err != nil {
		return common.Mapping{}, err
	}
	if _, err := s.store.QueueContribution(ctx, m); err != nil {
		return m, err
	}
	common.LogInfo("手動標記食材",
		zap.String("ingredient", key),
		zap.String("category", string(category)),
		zap.String("store_id", req.StoreID),
	)
	return m, nil
}
