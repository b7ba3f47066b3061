package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/utrading/utrading-hl-tracker/config"
	"github.com/utrading/utrading-hl-tracker/internal/address"
	"github.com/utrading/utrading-hl-tracker/internal/api"
	"github.com/utrading/utrading-hl-tracker/internal/cache"
	"github.com/utrading/utrading-hl-tracker/internal/cleaner"
	"github.com/utrading/utrading-hl-tracker/internal/dal"
	"github.com/utrading/utrading-hl-tracker/internal/dao"
	"github.com/utrading/utrading-hl-tracker/internal/eventlog"
	"github.com/utrading/utrading-hl-tracker/internal/feed"
	"github.com/utrading/utrading-hl-tracker/internal/monitor"
	"github.com/utrading/utrading-hl-tracker/internal/nats"
	"github.com/utrading/utrading-hl-tracker/internal/push"
	"github.com/utrading/utrading-hl-tracker/internal/tracker"
	"github.com/utrading/utrading-hl-tracker/pkg/logger"
	"github.com/utrading/utrading-hl-tracker/pkg/sigproc"
)

const persistWorkers = 64

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("hl_tracker service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化数据库
	dal.InitMysqlDB(cfg.MySQL)

	// 自动迁移表结构
	dal.AutoMigrate()

	// 初始化 DAO
	dao.InitDAO(dal.MySQL())

	// 创建数据清理器
	dataCleaner := cleaner.NewCleaner()
	dataCleaner.Start()

	// 初始化 NATS
	publisher, err := nats.NewPublisher(cfg.NATS.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init nats publisher failed")
	}
	defer publisher.Close()
	monitor.GetMetrics().SetNATSConnected(publisher.IsConnected())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 内存事件日志 + 缓存
	eventLog := eventlog.NewLog(cfg.Tracker.EventLogCapacity)
	priceCache := cache.NewPriceCache()
	dedupCache := cache.NewDedupCache(10 * time.Minute)

	// 异步落库工作池
	persister, err := tracker.NewPersister(persistWorkers)
	if err != nil {
		logger.Fatal().Err(err).Msg("init persister failed")
	}

	// 上游行情源
	hlFeed := feed.NewHyperliquidFeed(
		cfg.Tracker.HyperliquidWSURL,
		cfg.Tracker.HyperliquidAPIURL,
		cfg.Tracker.Coin,
	)

	// 事件追加后旁路发布到 NATS，失败不回滚
	onAppend := func(ev eventlog.ChangeEvent) {
		_ = publisher.PublishChangeEvent(ev)
	}

	store := tracker.DAOStore{}
	reconciler := tracker.NewReconciler(
		cfg.Tracker.Coin, cfg.Tracker.Symbol,
		eventLog, store, priceCache, persister, onAppend,
	)
	fillProcessor := tracker.NewFillProcessor(
		cfg.Tracker.Coin, cfg.Tracker.Symbol,
		eventLog, store, dedupCache, persister, onAppend,
	)

	// 订阅管理器
	tr := tracker.New(hlFeed, eventLog, reconciler, fillProcessor, priceCache, tracker.Options{
		Coin:             cfg.Tracker.Coin,
		Symbol:           cfg.Tracker.Symbol,
		PrimeMinInterval: cfg.Tracker.PrimeMinInterval,
		SnapshotMaxAge:   cfg.Tracker.SnapshotMaxAge,
		SweepInterval:    cfg.Tracker.FreshnessSweepInterval,
	})
	if err = tr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start tracker failed")
	}

	// 推送层
	hub := push.NewHub(eventLog, push.Options{
		CatchupLimit:      cfg.Push.CatchupLimit,
		BatchLimit:        cfg.Push.BatchLimit,
		MinInterval:       cfg.Push.MinBroadcastInterval,
		MaxInterval:       cfg.Push.MaxBroadcastInterval,
		HeartbeatInterval: cfg.Push.HeartbeatInterval,
	})
	hub.Run(ctx)

	// 清库后回拨推送游标
	tr.SetWipeCallback(hub.NotifyReset)

	// 对外 HTTP/WS 服务
	apiServer := api.NewServer(cfg.Push.ServerAddr, hub, tr, store)
	if err = apiServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start api server failed")
	}

	// 地址加载器（从 hl_tracked_addresses 表加载）
	addrLoader := address.NewLoader(
		tr,
		cfg.Tracker.AddressReloadInterval,
		cfg.Tracker.AddressRemoveGrace,
	)
	if err = addrLoader.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start address loader failed")
	}

	// 健康检查服务器
	healthServer := monitor.NewHealthServer(
		cfg.Push.HealthServerAddr,
		tr, hlFeed, hub, eventLog, publisher,
	)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}
	defer healthServer.Stop(context.Background())

	logger.Info().
		Str("ws_url", cfg.Tracker.HyperliquidWSURL).
		Str("coin", cfg.Tracker.Coin).
		Str("server_addr", cfg.Push.ServerAddr).
		Str("health_addr", cfg.Push.HealthServerAddr).
		Msg("hl_tracker service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止数据清理器
		dataCleaner.Stop()

		// 停止接收新信号
		cancel()

		// 停止地址加载器
		addrLoader.Stop()

		// 拆除订阅并关闭上游连接
		tr.Stop()

		// 关闭对外服务
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		apiServer.Stop(shutdownCtx)
		healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		// 排空落库队列
		persister.Close()

		// 关闭数据库
		dal.CloseMySQL()

		logger.Info().Msg("hl_tracker service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetFilePath(cfg.Logger.FilePath).
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
