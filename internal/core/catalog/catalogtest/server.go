// Package catalogtest 提供記憶體版的目錄伺服器，供測試使用
package catalogtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"ingredient-engine/internal/core/catalog"
)

type rowKey struct {
	name  string
	store string
}

// Server 模擬目錄後端：GET 支援 eq./is.null 篩選，POST 依 (normalized_name, store_id) upsert
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	catalog       map[rowKey]catalog.Row
	overrides     []catalog.Row
	contributions map[rowKey]catalog.ContributionRow
	requests      map[string]int
	failNext      int
	failStatus    int
}

// NewServer 啟動伺服器，呼叫者需負責 Close
func NewServer() *Server {
	s := &Server{
		catalog:       make(map[rowKey]catalog.Row),
		contributions: make(map[rowKey]catalog.ContributionRow),
		requests:      make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddRow 預先放入目錄資料
func (s *Server) AddRow(r catalog.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[keyOf(r)] = r
}

// AddOverride 預先放入門市覆寫
func (s *Server) AddOverride(r catalog.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, r)
}

// FailNext 接下來 n 個請求回傳指定狀態碼
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failStatus = status
}

// Requests 某方法與路徑被呼叫的次數，例如 "POST /ingredient_contributions"
func (s *Server) Requests(methodPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[methodPath]
}

// TotalRequests 所有請求次數
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// Contributions 目前伺服器端保存的貢獻
func (s *Server) Contributions() []catalog.ContributionRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.ContributionRow, 0, len(s.contributions))
	for _, c := range s.contributions {
		out = append(out, c)
	}
	return out
}

// CatalogRow 取得目錄中的資料列
func (s *Server) CatalogRow(name, storeID string) (catalog.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.catalog[rowKey{name, storeID}]
	return r, ok
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[r.Method+" "+r.URL.Path]++
	if s.failNext > 0 {
		s.failNext--
		http.Error(w, `{"message":"injected failure"}`, s.failStatus)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/ingredient_catalog":
		rows := []catalog.Row{}
		for _, row := range s.catalog {
			if matches(r, row) {
				rows = append(rows, row)
			}
		}
		writeJSON(w, rows)
	case r.Method == http.MethodGet && r.URL.Path == "/store_overrides":
		rows := []catalog.Row{}
		for _, row := range s.overrides {
			if matches(r, row) {
				rows = append(rows, row)
			}
		}
		writeJSON(w, rows)
	case r.Method == http.MethodPost && r.URL.Path == "/ingredient_catalog":
		var rows []catalog.Row
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range rows {
			s.catalog[keyOf(row)] = row
		}
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPost && r.URL.Path == "/ingredient_contributions":
		var rows []catalog.ContributionRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, row := range rows {
			s.contributions[keyOf(row.Row)] = row
		}
		w.WriteHeader(http.StatusCreated)
	default:
		http.NotFound(w, r)
	}
}

func keyOf(r catalog.Row) rowKey {
	k := rowKey{name: r.NormalizedName}
	if r.StoreID != nil {
		k.store = *r.StoreID
	}
	return k
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// matches 只支援客戶端實際會送出的篩選條件
func matches(r *http.Request, row catalog.Row) bool {
	fields := map[string]string{
		"normalized_name": row.NormalizedName,
		"store_id":        deref(row.StoreID),
		"chain_id":        deref(row.ChainID),
		"ingredient_id":   row.IngredientID,
	}
	q := r.URL.Query()
	for field, value := range fields {
		if !matchFilter(q.Get(field), value) {
			return false
		}
	}
	if or := q.Get("or"); or != "" {
		ok := false
		for _, clause := range strings.Split(strings.Trim(or, "()"), ",") {
			field, filter, _ := strings.Cut(clause, ".")
			if matchFilter(filter, fields[field]) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func matchFilter(filter, value string) bool {
	switch {
	case filter == "":
		return true
	case filter == "is.null":
		return value == ""
	case strings.HasPrefix(filter, "eq."):
		return value == strings.TrimPrefix(filter, "eq.")
	}
	return false
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
