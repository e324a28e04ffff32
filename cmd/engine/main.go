// Package main 是资金出借引擎的入口点。
// 引擎接入 Bitfinex 资金市场（默认 fUSD）的订单簿与成交流，
// 从快照派生统计信号，将可用资金分层挂出，并按效率分数决定撤换单。
//
// 机密（API 密钥、Webhook 地址）经环境变量注入，支持 .env 文件。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/core/state"
	"funding-liquidity-engine/internal/core/strategy"
	"funding-liquidity-engine/internal/engine"
	"funding-liquidity-engine/internal/exchange/bitfinex"
	"funding-liquidity-engine/internal/external"
	"funding-liquidity-engine/internal/notify"
	"funding-liquidity-engine/internal/output/jsonl"
	"funding-liquidity-engine/internal/util/ratelimit"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 缺失不算错误，线上环境直接注入环境变量
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	secrets := config.LoadSecrets()

	logger := newLogger(&cfg.App)
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

	st := state.New()

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		logger.Error("创建分层策略失败", zap.Error(err))
		os.Exit(1)
	}

	wsClient := bitfinex.NewClient(&cfg.Exchange, st, logger)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()
	if err := wsClient.Connect(startCtx); err != nil {
		logger.Error("Bitfinex 连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := wsClient.Subscribe(); err != nil {
		logger.Error("Bitfinex 订阅失败", zap.Error(err))
		os.Exit(1)
	}
	go wsClient.Run(ctx)

	// 认证能力按凭据可用性启用，缺失时引擎自动退化为演练模式
	var offers engine.OfferClient
	if secrets.APIKey != "" && secrets.APISecret != "" {
		limiter := ratelimit.New(cfg.Limiter.Tokens, time.Duration(cfg.Limiter.WindowSec)*time.Second)
		offers = bitfinex.NewRestClient(&cfg.Exchange, secrets, limiter, logger)
	} else {
		logger.Warn("未配置 API 凭据，引擎以演练模式运行")
	}

	poller := external.NewFundingPoller(&cfg.Exchange, &cfg.Signals, logger)

	eng := engine.New(cfg, st, strat, offers, poller, logger)
	eng.SetMetricsSource(wsClient)
	eng.SetNotifier(notify.NewNotifier(secrets.WebhookURL, logger))

	var journal *jsonl.Journal
	if cfg.Output.JournalEnabled {
		journal, err = jsonl.NewJournal(filepath.Join(cfg.Output.Dir, "decisions.jsonl"), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建决策日志失败", zap.Error(err))
			os.Exit(1)
		}
		eng.SetJournal(journal)
	}

	logger.Info("资金出借引擎已启动",
		zap.String("symbol", cfg.Exchange.Symbol),
		zap.Bool("dryRun", cfg.Strategy.DryRun || offers == nil))

	eng.Run(ctx)

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = wsClient.Close()
		_ = journal.Close()
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

// newLogger 构建日志记录器
// 始终输出到 stderr；配置了日志文件时附加轮转文件输出
func newLogger(app *config.AppConfig) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(app.LogLevel); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
	}
	if app.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   app.LogFile,
			MaxSize:    app.LogMaxSizeMB,
			MaxBackups: app.LogMaxBackups,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), lvl))
	}

	return zap.New(zapcore.NewTee(cores...)).Named(app.Name)
}
