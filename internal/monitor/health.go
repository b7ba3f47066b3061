package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-hl-tracker/pkg/goplus"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

// TrackerRef 跟踪器引用接口
type TrackerRef interface {
	TrackedCount() int
}

// FeedRef 上游连接引用接口
type FeedRef interface {
	IsConnected() bool
}

// HubRef 推送层引用接口
type HubRef interface {
	ClientCount() int
}

// LogRef 事件日志引用接口
type LogRef interface {
	Len() int
	LatestSeq() uint64
}

// PublisherRef NATS 发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr      string
	tracker   TrackerRef
	feed      FeedRef
	hub       HubRef
	eventLog  LogRef
	publisher PublisherRef

	server       *http.Server
	mu           sync.RWMutex
	healthy      bool
	healthySince time.Time
	startTime    time.Time
}

// NewHealthServer 创建健康检查服务器
func NewHealthServer(addr string, tracker TrackerRef, feed FeedRef,
	hub HubRef, eventLog LogRef, publisher PublisherRef) *HealthServer {
	return &HealthServer{
		addr:         addr,
		tracker:      tracker,
		feed:         feed,
		hub:          hub,
		eventLog:     eventLog,
		publisher:    publisher,
		healthy:      true,
		healthySince: time.Now(),
		startTime:    time.Now(),
	}
}

// Start 启动 HTTP 服务器
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.HandleFunc("/status", h.statusHandler)
	mux.Handle("/metrics", promhttp.Handler())

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	logger.Info().Str("addr", h.addr).Msg("health server started")
	return nil
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isReady() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *HealthServer) isReady() bool {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy {
		return false
	}
	if h.feed != nil && !h.feed.IsConnected() {
		return false
	}
	return true
}

func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	healthySince := h.healthySince
	h.mu.RUnlock()

	status := HealthStatus{
		Healthy:      healthy,
		HealthySince: healthySince.Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).String(),
	}

	if h.feed != nil {
		status.Upstream.Connected = h.feed.IsConnected()
	}
	if h.publisher != nil {
		status.NATS.Connected = h.publisher.IsConnected()
	}
	if h.tracker != nil {
		status.Addresses.Count = h.tracker.TrackedCount()
	}
	if h.hub != nil {
		status.Push.Clients = h.hub.ClientCount()
	}
	if h.eventLog != nil {
		status.EventLog.Size = h.eventLog.Len()
		status.EventLog.LatestSeq = h.eventLog.LatestSeq()
	}

	return status
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy      bool           `json:"healthy"`
	HealthySince string         `json:"healthy_since"`
	Uptime       string         `json:"uptime"`
	Upstream     UpstreamStatus `json:"upstream"`
	NATS         NATSStatus     `json:"nats"`
	Addresses    AddressStatus  `json:"addresses"`
	Push         PushStatus     `json:"push"`
	EventLog     EventLogStatus `json:"event_log"`
}

// UpstreamStatus 上游连接状态
type UpstreamStatus struct {
	Connected bool `json:"connected"`
}

// NATSStatus NATS 连接状态
type NATSStatus struct {
	Connected bool `json:"connected"`
}

// AddressStatus 地址状态
type AddressStatus struct {
	Count int `json:"count"`
}

// PushStatus 推送层状态
type PushStatus struct {
	Clients int `json:"clients"`
}

// EventLogStatus 事件日志状态
type EventLogStatus struct {
	Size      int    `json:"size"`
	LatestSeq uint64 `json:"latest_seq"`
}
