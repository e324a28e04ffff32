// Package engine 分配周期测试
package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/core/model"
	"funding-liquidity-engine/internal/core/state"
	"funding-liquidity-engine/internal/core/strategy"
)

// submitCall 一次提交调用的参数
type submitCall struct {
	symbol string
	amount decimal.Decimal
	rate   decimal.Decimal
	period int
}

// fakeOffers 可注入的假下单客户端
type fakeOffers struct {
	nextID    int64
	submits   []submitCall
	cancels   []int64
	available decimal.Decimal
	lent      decimal.Decimal
	submitErr error
}

func (f *fakeOffers) SubmitOffer(_ context.Context, symbol string, amount, rate decimal.Decimal, period int) (int64, error) {
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.submits = append(f.submits, submitCall{symbol: symbol, amount: amount, rate: rate, period: period})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeOffers) CancelOffer(_ context.Context, id int64) error {
	f.cancels = append(f.cancels, id)
	return nil
}

func (f *fakeOffers) FetchBalances(_ context.Context, _ string) (decimal.Decimal, decimal.Decimal, error) {
	return f.available, f.lent, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{Symbol: "fUSD"},
		Strategy: config.StrategyConfig{
			Weights:      config.LayerWeights{Base: 0.40, Alpha: 0.30, Spike: 0.30},
			MinOrderSize: 150.0,
			Period:       2,
		},
		Signals: config.SignalConfig{
			FundingRateThreshold: 0.0005,
			ZScoreThreshold:      2.0,
			VolatilityWindow:     50,
			SpikeWindow:          300,
			DepthLevels:          10,
			OFIDepthLevels:       5,
		},
		Rebalance: config.RebalanceConfig{
			IntervalSec:         10,
			EfficiencyThreshold: 1.25,
			ExecTimeSec:         10,
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, offers OfferClient) (*Engine, *state.MarketState) {
	t.Helper()
	st := state.New()
	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		t.Fatalf("strategy.New: %v", err)
	}
	e := New(cfg, st, strat, offers, nil, zap.NewNop())
	return e, st
}

// seedMarket 填充盘口与成交，形成 vwar=0.0001 的稳定行情
func seedMarket(st *state.MarketState) {
	st.ReplaceBook([]model.BookEntry{
		{Rate: decimal.NewFromFloat(0.0001), Period: 2, Count: 3, Amount: decimal.NewFromInt(1000)},
		{Rate: decimal.NewFromFloat(0.00009), Period: 2, Count: 1, Amount: decimal.NewFromInt(500)},
		{Rate: decimal.NewFromFloat(0.00012), Period: 2, Count: 2, Amount: decimal.NewFromInt(-800)},
	})
	trades := make([]model.Trade, 0, 10)
	for i := 0; i < 10; i++ {
		trades = append(trades, model.Trade{
			Rate:   decimal.NewFromFloat(0.0001),
			Amount: decimal.NewFromInt(100),
			MTS:    int64(1700000000000 + i),
		})
	}
	st.AppendTrades(trades)
	st.SetConnected(true)
}

func TestRunCycle_SubmitsAllLayers(t *testing.T) {
	cfg := testConfig()
	offers := &fakeOffers{available: decimal.NewFromInt(1000)}
	e, st := newTestEngine(t, cfg, offers)
	seedMarket(st)

	e.runCycle(context.Background())

	if len(offers.submits) != 3 {
		t.Fatalf("提交次数=%d, want 3", len(offers.submits))
	}
	if st.PendingOrderCount() != 3 {
		t.Fatalf("挂单数=%d, want 3", st.PendingOrderCount())
	}

	// Base 层的利率解析为提交时的最优买价
	base := offers.submits[0]
	if !base.rate.Equal(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("Base 利率=%s, want 0.0001（最优买价）", base.rate)
	}
	if !base.amount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("Base 金额=%s, want 400", base.amount)
	}
	if base.symbol != "fUSD" || base.period != 2 {
		t.Fatalf("提交参数=%+v", base)
	}
}

func TestRunCycle_DryRunDoesNotSubmit(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.DryRun = true
	offers := &fakeOffers{available: decimal.NewFromInt(1000)}
	e, st := newTestEngine(t, cfg, offers)
	seedMarket(st)

	e.runCycle(context.Background())

	if len(offers.submits) != 0 {
		t.Fatalf("演练模式提交次数=%d, want 0", len(offers.submits))
	}
	if st.PendingOrderCount() != 0 {
		t.Fatalf("演练模式挂单数=%d, want 0", st.PendingOrderCount())
	}
}

func TestRunCycle_NilOffersDegradesToDryRun(t *testing.T) {
	cfg := testConfig()
	e, st := newTestEngine(t, cfg, nil)
	seedMarket(st)
	st.UpdateBalance(decimal.NewFromInt(1000), decimal.Zero)

	// 无下单客户端时周期照常计算，只是不提交
	e.runCycle(context.Background())

	if st.PendingOrderCount() != 0 {
		t.Fatalf("挂单数=%d, want 0", st.PendingOrderCount())
	}
}

func TestRunCycle_NoBidsSkipsBaseLayer(t *testing.T) {
	cfg := testConfig()
	offers := &fakeOffers{available: decimal.NewFromInt(1000)}
	e, st := newTestEngine(t, cfg, offers)

	// 只有成交历史与卖盘，没有可追踪的买盘
	st.ReplaceBook([]model.BookEntry{
		{Rate: decimal.NewFromFloat(0.00012), Period: 2, Count: 2, Amount: decimal.NewFromInt(-800)},
	})
	st.AppendTrades([]model.Trade{
		{Rate: decimal.NewFromFloat(0.0001), Amount: decimal.NewFromInt(100), MTS: 1700000000000},
		{Rate: decimal.NewFromFloat(0.0001), Amount: decimal.NewFromInt(100), MTS: 1700000000001},
	})
	st.SetConnected(true)

	e.runCycle(context.Background())

	for _, s := range offers.submits {
		if s.amount.Equal(decimal.NewFromInt(400)) {
			t.Fatalf("无买盘时不应提交 Base 层: %+v", s)
		}
	}
	if len(offers.submits) != 2 {
		t.Fatalf("提交次数=%d, want 2（仅 Alpha/Spike）", len(offers.submits))
	}
}

func TestSweepPendingOrders_CancelReplace(t *testing.T) {
	cfg := testConfig()
	offers := &fakeOffers{nextID: 100}
	e, st := newTestEngine(t, cfg, offers)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	// 挂单 60 秒前以 0.0001 提交；计划目标 0.0002，vwar 0.0001
	// eta = (0.0001*2880)/(0.0001*70) ≈ 41.14 > 1.25 → 撤换单
	st.AddOrder(model.Order{
		ID:          55,
		Amount:      decimal.NewFromInt(300),
		Rate:        decimal.NewFromFloat(0.0001),
		Period:      2,
		SubmittedAt: now.Add(-60 * time.Second),
		Kind:        model.OrderKindLimit,
		Layer:       model.LayerAlpha,
	})

	plan := model.Plan{
		Layers: []model.PlanLayer{
			{Kind: model.LayerAlpha, Amount: decimal.NewFromInt(300), Rate: decimal.NewFromFloat(0.0002)},
		},
	}

	records := e.sweepPendingOrders(context.Background(), plan, model.NewBook(), 0.0001)

	if len(records) != 1 {
		t.Fatalf("决策记录数=%d, want 1", len(records))
	}
	rec := records[0]
	if !rec.Triggered {
		t.Fatalf("eta=%v 应触发撤换单", rec.Eta)
	}
	if rec.Eta < 41 || rec.Eta > 42 {
		t.Fatalf("eta=%v, want ≈41.14", rec.Eta)
	}
	if len(offers.cancels) != 1 || offers.cancels[0] != 55 {
		t.Fatalf("撤单记录=%v, want [55]", offers.cancels)
	}
	if rec.NewOrderID != 101 {
		t.Fatalf("新订单 ID=%d, want 101", rec.NewOrderID)
	}

	// 旧单移除、新单入集合
	pending := st.PendingOrders()
	if len(pending) != 1 || pending[0].ID != 101 {
		t.Fatalf("挂单集合=%+v", pending)
	}
	if !pending[0].Rate.Equal(decimal.NewFromFloat(0.0002)) {
		t.Fatalf("新单利率=%s, want 0.0002", pending[0].Rate)
	}
}

func TestSweepPendingOrders_BelowThresholdKeepsOrder(t *testing.T) {
	cfg := testConfig()
	offers := &fakeOffers{}
	e, st := newTestEngine(t, cfg, offers)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	// 目标与当前利率几乎相同：eta 低于阈值，保持不动
	st.AddOrder(model.Order{
		ID:          56,
		Amount:      decimal.NewFromInt(300),
		Rate:        decimal.NewFromFloat(0.0001),
		Period:      2,
		SubmittedAt: now.Add(-60 * time.Second),
		Layer:       model.LayerAlpha,
	})
	plan := model.Plan{
		Layers: []model.PlanLayer{
			{Kind: model.LayerAlpha, Amount: decimal.NewFromInt(300), Rate: decimal.NewFromFloat(0.000100001)},
		},
	}

	records := e.sweepPendingOrders(context.Background(), plan, model.NewBook(), 0.0001)

	if len(records) != 1 || records[0].Triggered {
		t.Fatalf("低 eta 不应触发: %+v", records)
	}
	if len(offers.cancels) != 0 {
		t.Fatalf("不应撤单: %v", offers.cancels)
	}
	if st.PendingOrderCount() != 1 {
		t.Fatalf("挂单应保留")
	}
}

func TestComputeSignals_ColdStartFallback(t *testing.T) {
	cfg := testConfig()
	e, st := newTestEngine(t, cfg, nil)

	// 无成交历史：vwar 回退到最优买价，波动率取保守默认
	st.ReplaceBook([]model.BookEntry{
		{Rate: decimal.NewFromFloat(0.00025), Period: 2, Count: 1, Amount: decimal.NewFromInt(100)},
	})
	bids, asks := st.SnapshotBook()

	sig := e.computeSignals(nil, bids, asks)
	if sig.vwar != 0.00025 {
		t.Fatalf("vwar=%v, want 0.00025（最优买价回退）", sig.vwar)
	}
	if sig.volatility != defaultVolatility {
		t.Fatalf("volatility=%v, want 默认值 %v", sig.volatility, defaultVolatility)
	}
}

func TestComputeSignals_FundingBias(t *testing.T) {
	cfg := testConfig()
	e, st := newTestEngine(t, cfg, nil)

	st.SetFundingRate(decimal.NewFromFloat(0.0007))
	bids, asks := st.SnapshotBook()

	sig := e.computeSignals(nil, bids, asks)
	if sig.bias != fundingBias {
		t.Fatalf("bias=%v, want %v（资金费率超阈值）", sig.bias, fundingBias)
	}

	// 阈值是严格大于
	st.SetFundingRate(decimal.NewFromFloat(0.0005))
	sig = e.computeSignals(nil, bids, asks)
	if sig.bias != 0 {
		t.Fatalf("bias=%v, want 0（恰好等于阈值不触发）", sig.bias)
	}
}

func TestComputeSignals_AggressiveBias(t *testing.T) {
	cfg := testConfig()
	e, st := newTestEngine(t, cfg, nil)
	bids, asks := st.SnapshotBook()

	// 交替 1/3 的吃单量建立 均值2 σ1 的基线
	for i := 0; i < 20; i++ {
		mag := int64(1)
		if i%2 == 0 {
			mag = 3
		}
		st.AppendTrades([]model.Trade{{
			Rate:   decimal.NewFromFloat(0.0001),
			Amount: decimal.NewFromInt(mag),
			MTS:    int64(1700000000000 + i),
		}})
		e.computeSignals(st.SnapshotTrades(), bids, asks)
	}

	// 突然出现 10 倍吃单量: z = (10-2)/1 = 8 > 2 → 激进模式
	st.AppendTrades([]model.Trade{{
		Rate:   decimal.NewFromFloat(0.0001),
		Amount: decimal.NewFromInt(10),
		MTS:    1700000001000,
	}})
	sig := e.computeSignals(st.SnapshotTrades(), bids, asks)

	if !sig.aggressive {
		t.Fatalf("z=%v 应进入激进模式", sig.zScore)
	}
	if sig.bias != aggressiveBias {
		t.Fatalf("bias=%v, want %v", sig.bias, aggressiveBias)
	}
	if !st.IsAggressive() {
		t.Fatal("激进标志应写回状态")
	}

	// 同一笔成交不重复计入尖峰窗口
	before := e.predictor.Len()
	e.computeSignals(st.SnapshotTrades(), bids, asks)
	if e.predictor.Len() != before {
		t.Fatal("同一笔成交重复入窗")
	}
}

func TestRunCycle_SubmitFailureKeepsGoing(t *testing.T) {
	cfg := testConfig()
	offers := &fakeOffers{
		available: decimal.NewFromInt(1000),
		submitErr: fmt.Errorf("nonce: small"),
	}
	e, st := newTestEngine(t, cfg, offers)
	seedMarket(st)

	// 提交失败只记日志，周期正常结束且不产生挂单
	e.runCycle(context.Background())

	if st.PendingOrderCount() != 0 {
		t.Fatalf("失败提交不应入挂单集合: %d", st.PendingOrderCount())
	}
}
