package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spf13/cast"

	"github.com/utrading/utrading-hl-tracker/internal/dao"
	"github.com/utrading/utrading-hl-tracker/internal/push"
	"github.com/utrading/utrading-hl-tracker/internal/tracker"
	"github.com/utrading/utrading-hl-tracker/internal/trades"
	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// Server 对外 HTTP 服务：推送入口、成交分页、快照查询和运维操作
type Server struct {
	addr    string
	hub     *push.Hub
	tracker *tracker.Tracker
	store   tracker.Store

	server *http.Server
}

func NewServer(addr string, hub *push.Hub, tr *tracker.Tracker, store tracker.Store) *Server {
	return &Server{
		addr:    addr,
		hub:     hub,
		tracker: tr,
		store:   store,
	}
}

// Start 启动 HTTP 服务
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/api/trades", s.tradesHandler)
	mux.HandleFunc("/api/snapshots", s.snapshotsHandler)
	mux.HandleFunc("/api/admin/wipe", s.wipeHandler)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	goplus.Go(func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api server error")
		}
	})

	logger.Info().Str("addr", s.addr).Msg("api server started")
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// tradesHandler 按 (time, id) 降序分页返回成交记录。
// 游标参数 beforeAt/beforeId 来自上一页响应的 nextCursor。
func (s *Server) tradesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	query := dao.PageQuery{
		Address:  q.Get("address"),
		Limit:    cast.ToInt(q.Get("limit")),
		BeforeAt: cast.ToInt64(q.Get("beforeAt")),
		BeforeID: cast.ToInt64(q.Get("beforeId")),
	}

	rows, err := dao.Trade().PageByTime(query)
	if err != nil {
		logger.Error().Err(err).Msg("page trades failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page := trades.Page{Trades: make([]trades.TradeRow, 0, len(rows))}
	for _, row := range rows {
		page.Trades = append(page.Trades, trades.TradeRow{
			ID:            row.ID,
			Time:          row.Time,
			Address:       row.Address,
			Action:        row.Action,
			Size:          row.Size,
			StartPosition: row.StartPosition,
			Px:            row.Px,
			ClosedPnl:     row.ClosedPnl,
			Tx:            row.TxKey,
			Hash:          row.Hash,
		})
	}

	// 取满一页才给下一页游标
	if n := len(page.Trades); n > 0 && n == queryLimit(query.Limit) {
		last := page.Trades[n-1]
		page.NextCursor = &trades.Cursor{BeforeAt: last.Time, BeforeID: last.ID}
	}

	writeJSON(w, page)
}

// snapshotsHandler 返回全部跟踪地址的当前仓位快照
func (s *Server) snapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]any{
		"snapshots": s.tracker.GetAllSnapshots(),
	})
}

// wipeHandler 运维清库：删除全部成交并重置事件日志序列空间
func (s *Server) wipeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := s.tracker.Wipe(s.store)
	if err != nil {
		logger.Error().Err(err).Msg("trade wipe failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"deleted": count})
}

// queryLimit 与 dao 的钳制规则保持一致
func queryLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
