package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	eventsAppended     *prometheus.CounterVec
	fillsProcessed     *prometheus.CounterVec
	fillsDeduped       prometheus.Counter
	primesTotal        *prometheus.CounterVec
	addressesTracked   prometheus.Gauge
	eventLogSize       prometheus.Gauge
	pushClients        prometheus.Gauge
	pushFramesSent     *prometheus.CounterVec
	websocketConnected prometheus.Gauge
	natsConnected      prometheus.Gauge
	persistErrors      *prometheus.CounterVec
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		eventsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_appended_total",
				Help:      "Total number of change events appended to the log",
			},
			[]string{"kind"}, // position, trade
		),
		fillsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fills_processed_total",
				Help:      "Total number of fills processed",
			},
			[]string{"result"}, // appended, duplicate, skipped
		),
		fillsDeduped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fills_deduplicated_total",
				Help:      "Total number of fills rejected as duplicates",
			},
		),
		primesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "primes_total",
				Help:      "Total number of HTTP snapshot primes",
			},
			[]string{"result"}, // success, error, skipped
		),
		addressesTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "addresses_tracked",
				Help:      "Current number of tracked addresses",
			},
		),
		eventLogSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_log_size",
				Help:      "Current number of events retained in the log",
			},
		),
		pushClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "push_clients_connected",
				Help:      "Current number of connected push consumers",
			},
		),
		pushFramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_frames_sent_total",
				Help:      "Total number of frames sent to push consumers",
			},
			[]string{"kind"}, // hello, batch, events
		),
		websocketConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connected",
				Help:      "Upstream WebSocket connection status (1=connected, 0=disconnected)",
			},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		persistErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_errors_total",
				Help:      "Total number of swallowed persistence errors",
			},
			[]string{"table"}, // hl_change_events, hl_trades, hl_position_snapshots
		),
	}

	prometheus.MustRegister(
		m.eventsAppended,
		m.fillsProcessed,
		m.fillsDeduped,
		m.primesTotal,
		m.addressesTracked,
		m.eventLogSize,
		m.pushClients,
		m.pushFramesSent,
		m.websocketConnected,
		m.natsConnected,
		m.persistErrors,
	)

	return m
}

// IncEventsAppended 增加事件追加计数
func (m *Metrics) IncEventsAppended(kind string) {
	m.eventsAppended.WithLabelValues(kind).Inc()
}

// IncFillsProcessed 增加成交处理计数
func (m *Metrics) IncFillsProcessed(result string) {
	m.fillsProcessed.WithLabelValues(result).Inc()
}

// IncFillsDeduped 增加成交去重计数
func (m *Metrics) IncFillsDeduped() {
	m.fillsDeduped.Inc()
}

// IncPrimes 增加校准计数
func (m *Metrics) IncPrimes(result string) {
	m.primesTotal.WithLabelValues(result).Inc()
}

// SetAddressesTracked 设置跟踪地址数
func (m *Metrics) SetAddressesTracked(count int) {
	m.addressesTracked.Set(float64(count))
}

// SetEventLogSize 设置事件日志当前大小
func (m *Metrics) SetEventLogSize(size int) {
	m.eventLogSize.Set(float64(size))
}

// SetPushClients 设置推送连接数
func (m *Metrics) SetPushClients(count int) {
	m.pushClients.Set(float64(count))
}

// IncPushFramesSent 增加推送帧计数
func (m *Metrics) IncPushFramesSent(kind string) {
	m.pushFramesSent.WithLabelValues(kind).Inc()
}

// SetWebSocketConnected 设置上游连接状态
func (m *Metrics) SetWebSocketConnected(connected bool) {
	if connected {
		m.websocketConnected.Set(1)
	} else {
		m.websocketConnected.Set(0)
	}
}

// SetNATSConnected 设置 NATS 连接状态
func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}

// IncPersistErrors 增加持久化失败计数
func (m *Metrics) IncPersistErrors(table string) {
	m.persistErrors.WithLabelValues(table).Inc()
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("hl_tracker")
	})
	return globalMetrics
}

// InitMetrics 初始化指标收集器（供 main 使用）
func InitMetrics() {
	GetMetrics()
}
