package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
)

type Tracker struct {
	HyperliquidWSURL       string        `toml:"hyperliquid_ws_url"`
	HyperliquidAPIURL      string        `toml:"hyperliquid_api_url"`
	Coin                   string        `toml:"coin"`   // 上游 coin 标识（BTC）
	Symbol                 string        `toml:"symbol"` // 对外展示 symbol（BTCUSD-PERP）
	EventLogCapacity       int           `toml:"event_log_capacity"`
	AddressReloadInterval  time.Duration `toml:"address_reload_interval"`
	AddressRemoveGrace     time.Duration `toml:"address_remove_grace"`
	PrimeMinInterval       time.Duration `toml:"prime_min_interval"`
	SnapshotMaxAge         time.Duration `toml:"snapshot_max_age"`
	FreshnessSweepInterval time.Duration `toml:"freshness_sweep_interval"`
}

type Push struct {
	ServerAddr           string        `toml:"server_addr"`
	HealthServerAddr     string        `toml:"health_server_addr"`
	CatchupLimit         int           `toml:"catchup_limit"`
	BatchLimit           int           `toml:"batch_limit"`
	MinBroadcastInterval time.Duration `toml:"min_broadcast_interval"`
	MaxBroadcastInterval time.Duration `toml:"max_broadcast_interval"`
	HeartbeatInterval    time.Duration `toml:"heartbeat_interval"`
}

type MySQL struct {
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Endpoint string `toml:"endpoint"`
}

type Logger struct {
	Level      string `toml:"level"`
	FilePath   string `toml:"file_path"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Config struct {
	Tracker Tracker `toml:"tracker"`
	Push    Push    `toml:"push"`
	MySQL   MySQL   `toml:"mysql"`
	NATS    NATS    `toml:"nats"`
	Logger  Logger  `toml:"log"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
)

func Default() *Config {
	return &Config{
		Tracker: Tracker{
			HyperliquidWSURL:       "wss://api.hyperliquid.xyz/ws",
			HyperliquidAPIURL:      "https://api.hyperliquid.xyz",
			Coin:                   "BTC",
			Symbol:                 "BTCUSD-PERP",
			EventLogCapacity:       2000,
			AddressReloadInterval:  time.Minute,
			AddressRemoveGrace:     5 * time.Minute,
			PrimeMinInterval:       15 * time.Second,
			SnapshotMaxAge:         5 * time.Minute,
			FreshnessSweepInterval: time.Minute,
		},
		Push: Push{
			ServerAddr:           "0.0.0.0:16820",
			HealthServerAddr:     "0.0.0.0:16821",
			CatchupLimit:         500,
			BatchLimit:           200,
			MinBroadcastInterval: 250 * time.Millisecond,
			MaxBroadcastInterval: 2 * time.Second,
			HeartbeatInterval:    30 * time.Second,
		},
		MySQL: MySQL{
			DSN:                "root:password@tcp(localhost:3306)/utrading?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Endpoint: "nats://localhost:4222",
		},
		Logger: Logger{
			Level:      "info",
			FilePath:   "logs/tracker.log",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		close(stopChan)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
		}
	}
}
