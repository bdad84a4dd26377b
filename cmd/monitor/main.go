// Package main 是服务器可用性监控器的入口点。
// 按配置轮询上游可用性快照，在库存变化时发送通知，并按订阅自动下单。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"server-availability-monitor/internal/action"
	"server-availability-monitor/internal/cache"
	"server-availability-monitor/internal/config"
	"server-availability-monitor/internal/core/order"
	"server-availability-monitor/internal/core/pricing"
	"server-availability-monitor/internal/core/store"
	"server-availability-monitor/internal/events"
	"server-availability-monitor/internal/monitor"
	"server-availability-monitor/internal/notify"
	"server-availability-monitor/internal/upstream"
	"server-availability-monitor/internal/util/timeutil"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel).With(zap.String("app", cfg.App.Name))
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	availability := upstream.NewAvailabilityClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, sec(cfg.Upstream.AvailabilityTimeoutSec))
	prices := upstream.NewPriceClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, sec(cfg.Upstream.PriceTimeoutSec))
	orders := upstream.NewOrderClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, sec(cfg.Upstream.OrderTimeoutSec))

	priceCache := cache.NewPriceCache(time.Duration(cfg.Cache.PriceTTLHours)*time.Hour, nil)
	tokens, closeTokens, err := newTokenStore(ctx, cfg)
	if err != nil {
		logger.Error("初始化令牌存储失败", zap.Error(err))
		os.Exit(1)
	}
	defer closeTokens()

	var senders notify.Fanout
	var telegram *notify.TelegramSender
	if cfg.Telegram.Enabled() {
		telegram = notify.NewTelegramSender(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.ChatID, 0)
		senders = append(senders, telegram)
	}
	var ws *notify.WSSender
	if cfg.WS.URL != "" {
		ws = notify.NewWSSender(cfg.WS.URL, logger)
		senders = append(senders, ws)
	}
	if len(senders) == 0 {
		logger.Warn("未配置任何通知传输，通知将被丢弃")
	}

	sinks, err := newEventSinks(cfg, logger)
	if err != nil {
		logger.Error("创建事件输出失败", zap.Error(err))
		os.Exit(1)
	}

	subs := store.New(cfg.Monitor.HistoryLimit, timeutil.Now)
	if cfg.Monitor.StatePath != "" {
		n, err := subs.LoadFile(cfg.Monitor.StatePath)
		if err != nil {
			logger.Error("恢复订阅状态失败", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("订阅状态已恢复", zap.String("path", cfg.Monitor.StatePath), zap.Int("subscriptions", n))
	}

	mon := monitor.New(monitor.Deps{
		Store:   subs,
		Source:  availability,
		Prices:  pricing.NewResolver(prices, priceCache, sec(cfg.Upstream.PriceTimeoutSec), logger),
		Orders:  order.NewOrchestrator(orders, prices, priceCache, logger),
		Builder: notify.NewBuilder(tokens, timeutil.Now, logger),
		Sender:  senders,
		Events:  sinks,
		Logger:  logger,
	}, monitor.DefaultOptions())

	for _, sc := range cfg.Subscriptions {
		mon.Add(sc.ToSubscription())
	}
	logger.Info("订阅加载完成", zap.Int("subscriptions", subs.Len()))

	if cfg.Monitor.AutoStart || subs.Len() > 0 {
		mon.Start(ctx)
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		h := &action.Handler{
			Tokens:  tokens,
			Orders:  orders,
			Prices:  priceCache,
			Monitor: mon,
			Control: mon,
			Logger:  logger,
		}
		if telegram != nil {
			h.Answerer = telegram
		}
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           action.NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("动作接口启动", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("动作接口退出", zap.Error(err))
				cancel()
			}
		}()
	}

	<-ctx.Done()

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
		}
		mon.Stop()
		if cfg.Monitor.StatePath != "" {
			if err := subs.SaveFile(cfg.Monitor.StatePath); err != nil {
				logger.Warn("保存订阅状态失败", zap.Error(err))
			}
		}
		if err := sinks.Close(); err != nil {
			logger.Warn("关闭事件输出失败", zap.Error(err))
		}
		if ws != nil {
			_ = ws.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

// newTokenStore 按配置创建令牌存储
// 返回: 存储、关闭函数与错误
func newTokenStore(ctx context.Context, cfg *config.Config) (cache.TokenStore, func(), error) {
	ttl := time.Duration(cfg.Cache.TokenTTLHours) * time.Hour
	if cfg.Cache.TokenBackend != config.TokenBackendRedis {
		return cache.NewMemoryTokens(ttl, nil), func() {}, nil
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	rt, err := cache.NewRedisTokens(pingCtx, cfg.Cache.RedisURL, ttl)
	if err != nil {
		return nil, nil, err
	}
	return rt, func() { _ = rt.Close() }, nil
}

// newEventSinks 按配置组合事件输出，均未配置时返回空集合
func newEventSinks(cfg *config.Config, logger *zap.Logger) (events.Multi, error) {
	var sinks events.Multi
	if cfg.Output.EventsPath != "" {
		js, err := events.NewJSONLSink(cfg.Output.EventsPath, cfg.Output.BufferSize, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, js)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	return sinks, nil
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
