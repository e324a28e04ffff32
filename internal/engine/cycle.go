// 单个分配周期的实现：信号计算、计划生成、层提交与撤换单扫描。
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"funding-liquidity-engine/internal/core/model"
	"funding-liquidity-engine/internal/core/signal"
	"funding-liquidity-engine/internal/core/state"
	"funding-liquidity-engine/internal/output/jsonl"
	"funding-liquidity-engine/internal/util/timeutil"
)

// cycleSignals 一个周期内计算出的全部信号
type cycleSignals struct {
	// vwar 成交量加权平均利率；无成交时回退到最优买价
	vwar float64
	// volatility 波动率估计；无成交时取保守默认值
	volatility float64
	// depthSkew 盘口深度偏斜
	depthSkew float64
	// ofi 相对上一周期的订单流不平衡
	ofi float64
	// zScore 最近吃单量 Z 分数
	zScore float64
	// aggressive 激进模式标志
	aggressive bool
	// bias 合成偏置
	bias float64
}

// runCycle 执行一个分配周期
// 周期内任何一步失败都不中断后续步骤，下个周期基于最新状态重新决策
func (e *Engine) runCycle(ctx context.Context) {
	e.refreshBalances(ctx)

	trades := e.state.SnapshotTrades()
	bids, asks := e.state.SnapshotBook()

	sig := e.computeSignals(trades, bids, asks)
	capital := e.state.AvailableBalance()

	plan := e.strategy.GenerateOrders(capital, sig.vwar, sig.volatility, sig.bias)
	plan.ID = uuid.NewString()

	rec := jsonl.CycleRecord{
		PlanID:      plan.ID,
		TSMs:        timeutil.NowMs(),
		VWAR:        sig.vwar,
		Volatility:  sig.volatility,
		Bias:        sig.bias,
		ZScore:      sig.zScore,
		DepthSkew:   sig.depthSkew,
		OFI:         sig.ofi,
		FundingRate: e.state.FundingRate().String(),
		Aggressive:  sig.aggressive,
		Capital:     capital.String(),
		DryRun:      e.dryRun(),
	}

	rec.Layers = e.executePlan(ctx, plan, bids)
	rec.Rebalances = e.sweepPendingOrders(ctx, plan, bids, sig.vwar)

	if e.journal != nil {
		if err := e.journal.WriteCycle(rec); err != nil {
			e.logger.Warn("写入周期记录失败", zap.Error(err))
		}
	}
}

// refreshBalances 从交易所刷新余额
// 失败保留状态中的旧值
func (e *Engine) refreshBalances(ctx context.Context) {
	if e.offers == nil {
		return
	}

	available, lent, err := e.offers.FetchBalances(ctx, e.cfg.Exchange.Symbol)
	if err != nil {
		e.logger.Warn("刷新余额失败，保留旧值", zap.Error(err))
		return
	}
	e.state.UpdateBalance(available, lent)
}

// computeSignals 基于快照计算全部信号
func (e *Engine) computeSignals(trades []model.Trade, bids, asks model.Book) cycleSignals {
	sig := cycleSignals{
		vwar:       signal.VWAR(trades),
		volatility: signal.Volatility(trades, e.cfg.Signals.VolatilityWindow),
		depthSkew:  signal.DepthSkew(bids, asks, e.cfg.Signals.DepthLevels),
		aggressive: e.state.IsAggressive(),
	}

	// 冷启动回退：无成交时以最优买价为参考利率、保守波动率起步
	if len(trades) == 0 {
		if best, ok := bids.Best(true); ok {
			sig.vwar, _ = best.Rate.Float64()
		}
		sig.volatility = defaultVolatility
	}

	if e.prevBids != nil {
		sig.ofi = signal.OFI(bids, asks, e.prevBids, e.prevAsks, e.cfg.Signals.OFIDepthLevels)
	}
	e.prevBids = bids
	e.prevAsks = asks

	// 每笔新成交只进一次尖峰窗口；先打分再入窗，当前样本不稀释自身的基线
	if last, ok := e.state.LastTrade(); ok && last.MTS != e.lastSeenMTS {
		mag, _ := last.Magnitude().Float64()
		sig.zScore = e.predictor.ZScore(mag)
		sig.aggressive = e.predictor.IsAggressive(mag, e.cfg.Signals.ZScoreThreshold)
		e.predictor.Add(mag)
		e.lastSeenMTS = last.MTS
		e.state.SetAggressive(sig.aggressive)
	}

	threshold := decimal.NewFromFloat(e.cfg.Signals.FundingRateThreshold)
	if e.state.FundingRate().GreaterThan(threshold) {
		sig.bias += fundingBias
	}
	if sig.aggressive {
		sig.bias += aggressiveBias
	}

	return sig
}

// executePlan 提交计划中的各层
// Base 层的目标利率在此刻解析为当前最优买价；无买盘时该层跳过。
// 演练模式只记录不提交。
func (e *Engine) executePlan(ctx context.Context, plan model.Plan, bids model.Book) []jsonl.LayerRecord {
	records := make([]jsonl.LayerRecord, 0, len(plan.Layers))

	for _, layer := range plan.Layers {
		rec := jsonl.LayerRecord{
			Kind:         string(layer.Kind),
			Amount:       layer.Amount.String(),
			TrackBestBid: layer.TrackBestBid,
		}

		rate := layer.Rate
		if layer.TrackBestBid {
			best, ok := bids.Best(true)
			if !ok {
				e.logger.Debug("无买盘可追踪，跳过基础层")
				records = append(records, rec)
				continue
			}
			rate = best.Rate
		}
		rec.Rate = rate.String()

		if e.dryRun() {
			records = append(records, rec)
			continue
		}

		id, err := e.offers.SubmitOffer(ctx, e.cfg.Exchange.Symbol, layer.Amount, rate, e.cfg.Strategy.Period)
		if err != nil {
			e.logger.Warn("提交层报价失败",
				zap.String("layer", string(layer.Kind)),
				zap.Error(err))
			records = append(records, rec)
			continue
		}

		e.state.AddOrder(model.Order{
			ID:          id,
			Amount:      layer.Amount,
			Rate:        rate,
			Period:      e.cfg.Strategy.Period,
			SubmittedAt: e.now(),
			Kind:        model.OrderKindLimit,
			Layer:       layer.Kind,
		})
		rec.OrderID = id
		rec.Submitted = true
		records = append(records, rec)
	}

	return records
}

// sweepPendingOrders 对在途挂单做撤换单扫描
// 每笔挂单与计划中同层的目标利率比较：
// eta = Efficiency(目标利率, 挂单利率, vwar, 挂单时长, 配置执行耗时)，
// 超过阈值时撤销并按目标利率重挂
func (e *Engine) sweepPendingOrders(ctx context.Context, plan model.Plan, bids model.Book, vwar float64) []jsonl.RebalanceRecord {
	pending := e.state.PendingOrders()
	if len(pending) == 0 {
		return nil
	}

	records := make([]jsonl.RebalanceRecord, 0, len(pending))
	now := e.now()

	for _, order := range pending {
		layer, ok := plan.Layer(order.Layer)
		if !ok {
			continue
		}

		target := layer.Rate
		if layer.TrackBestBid {
			best, ok := bids.Best(true)
			if !ok {
				continue
			}
			target = best.Rate
		}

		targetF, _ := target.Float64()
		currentF, _ := order.Rate.Float64()
		eta := e.rebalancer.Efficiency(targetF, currentF, vwar,
			order.RestingAge(now).Seconds(), float64(e.cfg.Rebalance.ExecTimeSec))

		rec := jsonl.RebalanceRecord{
			OrderID:   order.ID,
			Eta:       eta,
			Triggered: e.rebalancer.ShouldRebalance(eta),
		}

		if rec.Triggered && !e.dryRun() {
			rec.NewOrderID = e.cancelReplace(ctx, order, target)
		}
		records = append(records, rec)
	}

	return records
}

// cancelReplace 撤销挂单并按目标利率重挂
// 返回: 重挂后的订单 ID；失败返回 0
func (e *Engine) cancelReplace(ctx context.Context, order model.Order, target decimal.Decimal) int64 {
	if err := e.offers.CancelOffer(ctx, order.ID); err != nil {
		e.logger.Warn("撤销挂单失败", zap.Int64("orderId", order.ID), zap.Error(err))
		return 0
	}
	e.state.RemoveOrder(order.ID)

	id, err := e.offers.SubmitOffer(ctx, e.cfg.Exchange.Symbol, order.Amount, target, order.Period)
	if err != nil {
		e.logger.Warn("重挂报价失败", zap.Int64("cancelledId", order.ID), zap.Error(err))
		return 0
	}

	e.state.AddOrder(model.Order{
		ID:          id,
		Amount:      order.Amount,
		Rate:        target,
		Period:      order.Period,
		SubmittedAt: e.now(),
		Kind:        model.OrderKindLimit,
		Layer:       order.Layer,
	})

	e.logger.Info("挂单已撤换",
		zap.Int64("oldId", order.ID),
		zap.Int64("newId", id),
		zap.String("rate", target.String()))
	return id
}

// dryRun 判断是否处于演练模式
// 显式配置演练、或没有可用的下单客户端时都视为演练
func (e *Engine) dryRun() bool {
	return e.cfg.Strategy.DryRun || e.offers == nil
}

// currentVWAR 计算当前参考利率，带冷启动回退
func currentVWAR(trades []model.Trade, st *state.MarketState) float64 {
	vwar := signal.VWAR(trades)
	if len(trades) == 0 {
		bids, _ := st.SnapshotBook()
		if best, ok := bids.Best(true); ok {
			vwar, _ = best.Rate.Float64()
		}
	}
	return vwar
}
