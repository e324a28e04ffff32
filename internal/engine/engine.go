// Package engine 编排资金出借引擎的周期任务。
// 三条周期任务共享同一个 MarketState：
//   - 信号任务（默认 60s）：轮询外部资金费率并采样连接指标；
//   - 分配任务（默认 10s）：计算信号、生成分层计划、提交/撤换单；
//   - 报告任务（每日一次）：汇总状态并投递 Discord 通知。
//
// 行情接入由 exchange 包的独立协程负责，引擎只通过快照访问器读取。
// 停止统一经由 context 取消。
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/core/model"
	"funding-liquidity-engine/internal/core/rebalance"
	"funding-liquidity-engine/internal/core/spike"
	"funding-liquidity-engine/internal/core/state"
	"funding-liquidity-engine/internal/core/strategy"
	"funding-liquidity-engine/internal/exchange/bitfinex"
	"funding-liquidity-engine/internal/notify"
	"funding-liquidity-engine/internal/output/jsonl"
	"funding-liquidity-engine/internal/report"
	"funding-liquidity-engine/internal/util/timeutil"
)

// fundingBias 资金费率超阈值时的均值偏置
const fundingBias = 0.05

// aggressiveBias 激进模式下的额外均值偏置
const aggressiveBias = 0.10

// defaultVolatility 无成交历史时的保守波动率假设
const defaultVolatility = 0.0001

// OfferClient 认证下单能力
// 生产实现为 bitfinex.RestClient，测试注入假实现
type OfferClient interface {
	// SubmitOffer 提交资金出借报价，返回交易所订单 ID
	SubmitOffer(ctx context.Context, symbol string, amount, rate decimal.Decimal, period int) (int64, error)
	// CancelOffer 撤销资金出借报价
	CancelOffer(ctx context.Context, id int64) error
	// FetchBalances 拉取资金钱包的可用与已出借余额
	FetchBalances(ctx context.Context, symbol string) (available, lent decimal.Decimal, err error)
}

// FundingSource 外部资金费率读取能力
type FundingSource interface {
	// FetchFundingRate 拉取一次资金费率
	FetchFundingRate(ctx context.Context) (decimal.Decimal, error)
}

// MetricsSource 行情连接指标读取能力
type MetricsSource interface {
	// Metrics 获取当前连接指标
	Metrics() bitfinex.ConnectionMetrics
}

// Engine 资金出借引擎
type Engine struct {
	// cfg 引擎配置
	cfg *config.Config
	// logger 日志记录器
	logger *zap.Logger
	// state 市场状态
	state *state.MarketState
	// strategy 资金分层策略
	strategy *strategy.Distribution
	// rebalancer 撤换单决策器
	rebalancer *rebalance.Rebalancer
	// predictor 吃单量尖峰预测器
	predictor *spike.Predictor
	// offers 认证下单客户端；无凭据时为 nil，自动退化为演练
	offers OfferClient
	// funding 外部资金费率来源
	funding FundingSource
	// metricsSrc 连接指标来源；可为 nil
	metricsSrc MetricsSource
	// notifier 通知器；可为 nil
	notifier *notify.Notifier
	// journal 决策日志；可为 nil
	journal *jsonl.Journal

	// lastSeenMTS 尖峰预测器最近消费的成交时间戳，避免同一笔重复入窗
	lastSeenMTS int64
	// prevBids 上一周期的买盘快照（订单流不平衡的基线）
	prevBids model.Book
	// prevAsks 上一周期的卖盘快照
	prevAsks model.Book

	// now 时钟，测试中替换
	now func() time.Time
}

// New 创建引擎
// 参数 cfg: 引擎配置
// 参数 st: 市场状态
// 参数 strat: 分层策略
// 参数 offers: 认证下单客户端，可为 nil
// 参数 funding: 资金费率来源，可为 nil
// 参数 logger: 日志记录器
func New(cfg *config.Config, st *state.MarketState, strat *strategy.Distribution,
	offers OfferClient, funding FundingSource, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		logger:     logger.Named("engine"),
		state:      st,
		strategy:   strat,
		rebalancer: rebalance.New(cfg.Rebalance.EfficiencyThreshold),
		predictor:  spike.New(cfg.Signals.SpikeWindow),
		offers:     offers,
		funding:    funding,
		now:        time.Now,
	}
}

// SetJournal 设置决策日志
func (e *Engine) SetJournal(j *jsonl.Journal) {
	e.journal = j
}

// SetNotifier 设置通知器
func (e *Engine) SetNotifier(n *notify.Notifier) {
	e.notifier = n
}

// SetMetricsSource 设置连接指标来源
func (e *Engine) SetMetricsSource(m MetricsSource) {
	e.metricsSrc = m
}

// Run 启动全部周期任务，阻塞直到 ctx 取消
func (e *Engine) Run(ctx context.Context) {
	go e.signalLoop(ctx)
	go e.reportLoop(ctx)
	e.allocationLoop(ctx)
}

// signalLoop 信号任务
// 周期轮询外部资金费率；失败保留上一次读数。顺带采样连接指标入日志。
func (e *Engine) signalLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(e.cfg.Signals.FundingIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollFundingRate(ctx)
			e.journalMetrics()
		}
	}
}

// pollFundingRate 拉取一次资金费率并写入状态
func (e *Engine) pollFundingRate(ctx context.Context) {
	if e.funding == nil {
		return
	}

	rate, err := e.funding.FetchFundingRate(ctx)
	if err != nil {
		e.logger.Warn("拉取资金费率失败，保留上次读数", zap.Error(err))
		return
	}

	e.state.SetFundingRate(rate)
	e.logger.Debug("资金费率已更新", zap.String("rate", rate.String()))
}

// journalMetrics 采样连接指标写入决策日志
func (e *Engine) journalMetrics() {
	if e.metricsSrc == nil || e.journal == nil {
		return
	}

	m := e.metricsSrc.Metrics()
	rec := jsonl.MetricsRecord{
		TSMs:              timeutil.NowMs(),
		ReconnectCount:    m.ReconnectCount,
		ParseErrorCount:   m.ParseErrorCount,
		DroppedFrameCount: m.DroppedFrameCount,
		LastFrameAgeMs:    m.LastFrameAgeMs,
	}
	if err := e.journal.WriteMetrics(rec); err != nil {
		e.logger.Warn("写入指标记录失败", zap.Error(err))
	}
}

// allocationLoop 分配任务
// 行情断开时跳过整个周期，重连后快照重建会自然恢复
func (e *Engine) allocationLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(e.cfg.Rebalance.IntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.state.IsConnected() {
				e.logger.Debug("行情未连接，跳过分配周期")
				continue
			}
			e.runCycle(ctx)
		}
	}
}

// reportLoop 报告任务
// 每日在配置的本地小时触发一次
func (e *Engine) reportLoop(ctx context.Context) {
	if !e.cfg.Report.Enabled {
		return
	}

	for {
		next := e.nextReportTime()
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			e.sendReport(ctx)
		}
	}
}

// nextReportTime 计算下一次报告时间
// 今天的配置小时已过则取明天
func (e *Engine) nextReportTime() time.Time {
	now := e.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), e.cfg.Report.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// sendReport 汇总状态并发送每日报告
func (e *Engine) sendReport(ctx context.Context) {
	trades := e.state.SnapshotTrades()
	vwar := currentVWAR(trades, e.state)

	r := report.Build(vwar,
		e.state.AvailableBalance(),
		e.state.LentBalance(),
		e.state.IsAggressive(),
		e.state.PendingOrderCount())

	e.logger.Info("每日状态报告",
		zap.Float64("aprPercent", r.APRPercent),
		zap.Float64("utilizationPercent", r.UtilizationPercent),
		zap.Strings("conditions", r.Conditions))

	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, r.Format()); err != nil {
		e.logger.Warn("发送每日报告失败", zap.Error(err))
	}
}
