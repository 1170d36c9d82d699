// Package localstore 離線可用的分類快取與待同步佇列，資料存放於本地 SQLite
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"ingredient-engine/internal/core/vector"
	"ingredient-engine/internal/infrastructure/database"
	"ingredient-engine/internal/pkg/common"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
)

// Store 本地分類快取
type Store struct {
	db  *sql.DB
	now func() time.Time

	flushing   chan struct{}
	generation atomic.Uint64
}

// New 建立本地快取；db 需由 database.Open 開啟
func New(db *sql.DB) *Store {
	return &Store{
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
		flushing: make(chan struct{}, 1),
	}
}

// Init 確保資料表存在
func (s *Store) Init(ctx context.Context) error {
	return database.Migrate(ctx, s.db)
}

func scopeKey(m *common.Mapping) string {
	switch m.Scope() {
	case common.ScopeStore:
		return "store:" + m.StoreID
	case common.ScopeChain:
		return "chain:" + m.ChainID
	default:
		return "global"
	}
}

// scopeKeys 依查詢條件列出可見的作用範圍
func scopeKeys(storeID, chainID string) []string {
	keys := []string{"global"}
	if chainID != "" {
		keys = append(keys, "chain:"+chainID)
	}
	if storeID != "" {
		keys = append(keys, "store:"+storeID)
	}
	return keys
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const mappingCols = `normalized_name, store_id, chain_id, ingredient_id, display_name, department, zone,
	confidence, source, embedding, synonyms, updated_at`

func scanMapping(scanner interface{ Scan(...any) error }) (*common.Mapping, error) {
	var (
		m         common.Mapping
		dept      string
		source    string
		embedding []byte
		synonyms  string
		updatedAt string
	)
	err := scanner.Scan(&m.NormalizedName, &m.StoreID, &m.ChainID, &m.IngredientID, &m.DisplayName,
		&dept, &m.Zone, &m.Confidence, &source, &embedding, &synonyms, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.Department = common.Category(dept)
	m.Source = common.Provenance(source)
	if len(embedding) > 0 {
		m.Embedding = make([]int8, len(embedding))
		for i, b := range embedding {
			m.Embedding[i] = int8(b)
		}
	}
	if synonyms != "" && synonyms != "[]" {
		if err := json.Unmarshal([]byte(synonyms), &m.Synonyms); err != nil {
			common.LogDebug("同義詞資料無法解析", zap.String("name", m.NormalizedName), zap.Error(err))
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		m.UpdatedAt = t
	}
	return &m, nil
}

// Get 依正規化鍵查詢有效分類，門市 > 連鎖 > 全域；查無資料回傳 (nil, nil)
func (s *Store) Get(ctx context.Context, key, storeID, chainID string) (*common.Mapping, error) {
	keys := scopeKeys(storeID, chainID)
	args := []any{key}
	for _, k := range keys {
		args = append(args, k)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+mappingCols+` FROM mappings
		WHERE normalized_name = ? AND scope_key IN (`+placeholders(len(keys))+`)
		ORDER BY scope DESC LIMIT 1`, args...)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

// Put 寫入分類
//
// 同一鍵與作用範圍已有記錄時，只有信心度不低於既有記錄、或來源為人工標記時才會取代。
func (s *Store) Put(ctx context.Context, m common.Mapping) error {
	if err := s.put(ctx, s.db, m); err != nil {
		return err
	}
	s.generation.Add(1)
	return nil
}

// Generation 分類資料的版本，每次成功寫入都會遞增
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) put(ctx context.Context, db execer, m common.Mapping) error {
	if m.NormalizedName == "" {
		return fmt.Errorf("put mapping: empty normalized name")
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = s.now()
	}
	// 沒有向量時寫入 NULL，讓既有向量得以保留
	var embedding any
	if len(m.Embedding) > 0 {
		blob := make([]byte, len(m.Embedding))
		for i, v := range m.Embedding {
			blob[i] = byte(v)
		}
		embedding = blob
	}
	synonyms := "[]"
	if len(m.Synonyms) > 0 {
		data, err := json.Marshal(m.Synonyms)
		if err != nil {
			return fmt.Errorf("encode synonyms: %w", err)
		}
		synonyms = string(data)
	}

	_, err := db.ExecContext(ctx, `INSERT INTO mappings (normalized_name, scope_key, scope, store_id, chain_id,
			ingredient_id, display_name, department, zone, confidence, source, embedding, synonyms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name, scope_key) DO UPDATE SET
			store_id = excluded.store_id,
			chain_id = excluded.chain_id,
			ingredient_id = CASE WHEN excluded.ingredient_id != '' THEN excluded.ingredient_id ELSE mappings.ingredient_id END,
			display_name = excluded.display_name,
			department = excluded.department,
			zone = excluded.zone,
			confidence = excluded.confidence,
			source = excluded.source,
			embedding = COALESCE(excluded.embedding, mappings.embedding),
			synonyms = excluded.synonyms,
			updated_at = excluded.updated_at
		WHERE excluded.confidence >= mappings.confidence OR excluded.source = 'manual'`,
		m.NormalizedName, scopeKey(&m), int(m.Scope()), m.StoreID, m.ChainID,
		m.IngredientID, m.DisplayName, string(m.Department), m.Zone, m.Confidence, string(m.Source),
		embedding, synonyms, m.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put mapping %q: %w", m.NormalizedName, err)
	}
	return nil
}

// BulkUpsert 在單一交易中寫入多筆分類
func (s *Store) BulkUpsert(ctx context.Context, mappings []common.Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	for _, m := range mappings {
		if err := s.put(ctx, tx, m); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk upsert: %w", err)
	}
	s.generation.Add(1)
	common.LogDebug("批次寫入本地分類", zap.Int("count", len(mappings)))
	return nil
}

// effective 取得可見範圍內每個名稱的有效分類
func (s *Store) effective(ctx context.Context, storeID, chainID, extraWhere string, extraArgs ...any) ([]common.Mapping, error) {
	keys := scopeKeys(storeID, chainID)
	args := make([]any, 0, len(keys)+len(extraArgs))
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, extraArgs...)

	query := `SELECT ` + mappingCols + ` FROM mappings WHERE scope_key IN (` + placeholders(len(keys)) + `)`
	if extraWhere != "" {
		query += ` AND (` + extraWhere + `)`
	}
	query += ` ORDER BY normalized_name ASC, scope DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var result []common.Mapping
	last := ""
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		// 同名只保留作用範圍最具體的一筆
		if m.NormalizedName == last {
			continue
		}
		last = m.NormalizedName
		result = append(result, *m)
	}
	return result, rows.Err()
}

// SearchFuzzy 模糊搜尋名稱，依分數由高到低排序，同分以名稱升冪
func (s *Store) SearchFuzzy(ctx context.Context, query string, limit int, storeID, chainID string) ([]common.Mapping, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	// 以字詞前三個字元做 LIKE 預篩，另外保留名稱整個出現在查詢中的候選
	var (
		likes []string
		args  []any
	)
	for _, tok := range strings.Fields(query) {
		runes := []rune(tok)
		if len(runes) < 3 {
			continue
		}
		likes = append(likes, "normalized_name LIKE ?")
		args = append(args, "%"+string(runes[:3])+"%")
	}
	if len(likes) > 0 {
		likes = append(likes, "? LIKE '%' || normalized_name || '%'")
		args = append(args, query)
	}
	candidates, err := s.effective(ctx, storeID, chainID, strings.Join(likes, " OR "), args...)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.NormalizedName
	}

	type scored struct {
		idx   int
		score int
	}
	best := make(map[int]int)
	for _, m := range fuzzy.FindNoSort(query, names) {
		best[m.Index] = m.Score
	}
	// 反向：候選名稱是查詢字串的子序列（例如 "tomatoes" 之於 "cherry tomatoes"）
	for i, name := range names {
		if _, ok := best[i]; ok {
			continue
		}
		if matches := fuzzy.FindNoSort(name, []string{query}); len(matches) > 0 {
			best[i] = matches[0].Score
		}
	}

	ranked := make([]scored, 0, len(best))
	for idx, score := range best {
		ranked = append(ranked, scored{idx, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return names[ranked[i].idx] < names[ranked[j].idx]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := make([]common.Mapping, len(ranked))
	for i, r := range ranked {
		result[i] = candidates[r.idx]
	}
	return result, nil
}

// VectorMatch 向量搜尋結果
type VectorMatch struct {
	Mapping    common.Mapping
	Similarity float64
}

// NearestByVector 依餘弦相似度回傳前 k 筆，同分以名稱升冪
func (s *Store) NearestByVector(ctx context.Context, query []int8, k int, storeID, chainID string) ([]VectorMatch, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	// 有效分類不受向量過濾；較具體的範圍缺向量時，沿用同名其他可見範圍的向量排序
	candidates, err := s.effective(ctx, storeID, chainID, "")
	if err != nil {
		return nil, err
	}
	embedded, err := s.effective(ctx, storeID, chainID, "embedding IS NOT NULL AND length(embedding) = ?", len(query))
	if err != nil {
		return nil, err
	}
	byName := make(map[string][]int8, len(embedded))
	for _, m := range embedded {
		byName[m.NormalizedName] = m.Embedding
	}

	ranked := candidates[:0]
	for _, c := range candidates {
		emb, ok := byName[c.NormalizedName]
		if !ok {
			continue
		}
		c.Embedding = emb
		ranked = append(ranked, c)
	}
	candidates = ranked

	vectors := make([]vector.Candidate, len(candidates))
	for i, c := range candidates {
		vectors[i] = vector.Candidate{Key: c.NormalizedName, Vector: c.Embedding}
	}

	top := vector.TopK(query, vectors, k)
	result := make([]VectorMatch, len(top))
	for i, m := range top {
		result[i] = VectorMatch{Mapping: candidates[m.Index], Similarity: m.Similarity}
	}
	return result, nil
}

// Count 本地分類總筆數
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}
