// Package catalog 遠端食材目錄的 REST 客戶端
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"ingredient-engine/internal/infrastructure/config"
	"ingredient-engine/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	catalogTable      = "/ingredient_catalog"
	overrideTable     = "/store_overrides"
	contributionTable = "/ingredient_contributions"
	upsertConflict    = "normalized_name,store_id"
)

// Row 目錄資料列
type Row struct {
	ID             string   `json:"id,omitempty"`
	IngredientID   string   `json:"ingredient_id,omitempty"`
	NormalizedName string   `json:"normalized_name"`
	DisplayName    string   `json:"display_name,omitempty"`
	Category       string   `json:"category,omitempty"`
	Aisle          string   `json:"aisle,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	Source         string   `json:"source,omitempty"`
	StoreID        *string  `json:"store_id"`
	ChainID        *string  `json:"chain_id"`
	Synonyms       []string `json:"synonyms,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
}

// ContributionRow 貢獻資料列
type ContributionRow struct {
	Row
	ContributionID string `json:"contribution_id"`
	SubmittedAt    string `json:"submitted_at"`
}

// Client 目錄客戶端
type Client struct {
	client *resty.Client
}

// NewClient 創建目錄客戶端
func NewClient(cfg config.CatalogConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey).
			SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Client{client: client}
}

// Lookup 查詢全域或連鎖層級的分類；同時存在時連鎖優先，查無資料回傳 (nil, nil)
func (c *Client) Lookup(ctx context.Context, key, chainID string) (*common.Mapping, error) {
	params := map[string]string{
		"normalized_name": "eq." + key,
		"store_id":        "is.null",
		"select":          "*",
	}
	if chainID != "" {
		params["or"] = fmt.Sprintf("(chain_id.eq.%s,chain_id.is.null)", chainID)
	} else {
		params["chain_id"] = "is.null"
	}

	var rows []Row
	found, err := c.get(ctx, catalogTable, params, &rows)
	if err != nil || !found || len(rows) == 0 {
		return nil, err
	}

	best := rows[0]
	for _, r := range rows[1:] {
		if r.ChainID != nil && *r.ChainID != "" && (best.ChainID == nil || *best.ChainID == "") {
			best = r
		}
	}
	m := best.toMapping()
	return &m, nil
}

// Override 查詢門市對某食材的覆寫分類，查無資料回傳 (nil, nil)
func (c *Client) Override(ctx context.Context, storeID, ingredientID string) (*common.Mapping, error) {
	if storeID == "" || ingredientID == "" {
		return nil, nil
	}
	params := map[string]string{
		"store_id":      "eq." + storeID,
		"ingredient_id": "eq." + ingredientID,
		"select":        "*",
	}

	var rows []Row
	found, err := c.get(ctx, overrideTable, params, &rows)
	if err != nil || !found || len(rows) == 0 {
		return nil, err
	}
	m := rows[0].toMapping()
	return &m, nil
}

// Upsert 寫入分類，以 (normalized_name, store_id) 冪等合併
func (c *Client) Upsert(ctx context.Context, m common.Mapping) error {
	return c.post(ctx, catalogTable, []Row{rowFromMapping(m)})
}

// SubmitContribution 提交同步佇列中的貢獻，重送同一筆不會造成重複
func (c *Client) SubmitContribution(ctx context.Context, contribution common.Contribution) error {
	row := ContributionRow{
		Row:            rowFromMapping(contribution.Mapping),
		ContributionID: contribution.ID,
		SubmittedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	return c.post(ctx, contributionTable, []ContributionRow{row})
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out interface{}) (bool, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return false, wrapTransport(ctx, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsError():
		common.LogWarn("目錄查詢失敗", zap.String("path", path), zap.Int("status", resp.StatusCode()))
		return false, fmt.Errorf("catalog %s returned status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetQueryParam("on_conflict", upsertConflict).
		SetBody(body).
		Post(path)
	if err != nil {
		return wrapTransport(ctx, err)
	}
	if resp.IsError() {
		return fmt.Errorf("catalog %s returned status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}

func wrapTransport(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("catalog request: %w", common.ErrUpstreamTimeout)
	}
	return fmt.Errorf("catalog request failed: %w", err)
}

func (r Row) toMapping() common.Mapping {
	category, ok := common.ParseCategory(r.Category)
	if !ok {
		common.LogWarn("目錄分類不在已知清單，改用 other",
			zap.String("name", r.NormalizedName), zap.String("category", r.Category))
		category = common.CategoryOther
	}
	m := common.Mapping{
		IngredientID:   r.IngredientID,
		NormalizedName: r.NormalizedName,
		DisplayName:    r.DisplayName,
		Department:     category,
		Zone:           r.Aisle,
		Confidence:     r.Confidence,
		Source:         common.Provenance(r.Source),
		Synonyms:       r.Synonyms,
	}
	if m.IngredientID == "" {
		m.IngredientID = r.ID
	}
	if m.Source == "" {
		m.Source = common.ProvenanceCrowd
	}
	if r.StoreID != nil {
		m.StoreID = *r.StoreID
	}
	if r.ChainID != nil {
		m.ChainID = *r.ChainID
	}
	if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
		m.UpdatedAt = t
	}
	return m
}

func rowFromMapping(m common.Mapping) Row {
	r := Row{
		IngredientID:   m.IngredientID,
		NormalizedName: m.NormalizedName,
		DisplayName:    m.DisplayName,
		Category:       string(m.Department),
		Aisle:          m.Zone,
		Confidence:     m.Confidence,
		Source:         string(m.Source),
		Synonyms:       m.Synonyms,
	}
	if m.StoreID != "" {
		r.StoreID = &m.StoreID
	}
	if m.ChainID != "" {
		r.ChainID = &m.ChainID
	}
	if !m.UpdatedAt.IsZero() {
		r.UpdatedAt = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return r
}
