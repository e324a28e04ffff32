// Package strategy 分层策略测试
package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/core/model"
)

func defaultStrategy(t *testing.T) *Distribution {
	t.Helper()
	d, err := New(config.StrategyConfig{
		Weights:      config.LayerWeights{Base: 0.40, Alpha: 0.30, Spike: 0.30},
		MinOrderSize: 150.0,
	})
	if err != nil {
		t.Fatalf("New 失败: %v", err)
	}
	return d
}

func TestGenerateOrders_DefaultFixture(t *testing.T) {
	d := defaultStrategy(t)

	// capital=1000, vwar=0.0001, σ=0.00001, bias=0
	plan := d.GenerateOrders(decimal.NewFromInt(1000), 0.0001, 0.00001, 0.0)

	if len(plan.Layers) != 3 {
		t.Fatalf("层数=%d, want 3", len(plan.Layers))
	}

	base, ok := plan.Layer(model.LayerBase)
	if !ok || !base.Amount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("Base=%+v, want 金额 400", base)
	}
	if !base.TrackBestBid {
		t.Fatal("Base 层应标记追踪最优买价")
	}

	alpha, ok := plan.Layer(model.LayerAlpha)
	if !ok || !alpha.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("Alpha=%+v, want 金额 300", alpha)
	}
	// Alpha 利率 = 0.0001 + 0.5*0.00001 = 0.000105
	if got, _ := alpha.Rate.Float64(); math.Abs(got-0.000105) > 1e-12 {
		t.Fatalf("Alpha 利率=%v, want 0.000105", got)
	}

	spike, ok := plan.Layer(model.LayerSpike)
	if !ok || !spike.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("Spike=%+v, want 金额 300", spike)
	}
	// Spike 利率 = 0.0001 + 3*0.00001 = 0.00013
	if got, _ := spike.Rate.Float64(); math.Abs(got-0.00013) > 1e-12 {
		t.Fatalf("Spike 利率=%v, want 0.00013", got)
	}
}

func TestGenerateOrders_UndersizedLayersDroppedSilently(t *testing.T) {
	d := defaultStrategy(t)

	// capital=300：Alpha=90、Spike=90 低于 150 被静默丢弃；
	// Base 只预留份额（120），不受最小金额门槛约束，计划只剩 Base 层
	plan := d.GenerateOrders(decimal.NewFromInt(300), 0.0001, 0.00001, 0.0)
	if len(plan.Layers) != 1 {
		t.Fatalf("层数=%d, want 1（仅 Base）", len(plan.Layers))
	}
	if plan.Layers[0].Kind != model.LayerBase {
		t.Fatalf("保留层=%s, want BASE", plan.Layers[0].Kind)
	}
	if !plan.Layers[0].Amount.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("Base 金额=%s, want 120", plan.Layers[0].Amount)
	}

	// capital=500：Base=200，Alpha/Spike=150 恰好达到门槛（≥ 包含边界）
	plan = d.GenerateOrders(decimal.NewFromInt(500), 0.0001, 0.00001, 0.0)
	if len(plan.Layers) != 3 {
		t.Fatalf("层数=%d, want 3（150 恰好达标）", len(plan.Layers))
	}

	// capital=400：Alpha/Spike=120 被丢弃，Base=160 保留
	plan = d.GenerateOrders(decimal.NewFromInt(400), 0.0001, 0.00001, 0.0)
	if len(plan.Layers) != 1 || plan.Layers[0].Kind != model.LayerBase {
		t.Fatalf("layers=%+v, want 仅 Base", plan.Layers)
	}
}

func TestGenerateOrders_BiasShiftsMean(t *testing.T) {
	d := defaultStrategy(t)

	// bias=0.05：mu = 0.0001*1.05 = 0.000105
	plan := d.GenerateOrders(decimal.NewFromInt(1000), 0.0001, 0.0, 0.05)
	if math.Abs(plan.Mu-0.000105) > 1e-15 {
		t.Fatalf("Mu=%v, want 0.000105", plan.Mu)
	}

	// σ=0 时 Alpha 与 Spike 利率都等于 mu
	alpha, _ := plan.Layer(model.LayerAlpha)
	spike, _ := plan.Layer(model.LayerSpike)
	if !alpha.Rate.Equal(spike.Rate) {
		t.Fatalf("σ=0 时 Alpha(%s) 与 Spike(%s) 利率应相同", alpha.Rate, spike.Rate)
	}
}

func TestGenerateOrders_ZeroCapital(t *testing.T) {
	d := defaultStrategy(t)

	plan := d.GenerateOrders(decimal.Zero, 0.0001, 0.00001, 0.0)
	if len(plan.Layers) != 0 {
		t.Fatalf("零资金层数=%d, want 0", len(plan.Layers))
	}
}

func TestNew_RejectsBadWeights(t *testing.T) {
	_, err := New(config.StrategyConfig{
		Weights:      config.LayerWeights{Base: 0.5, Alpha: 0.3, Spike: 0.3},
		MinOrderSize: 150,
	})
	if err == nil {
		t.Fatal("权重之和 1.1 应被拒绝")
	}

	_, err = New(config.StrategyConfig{
		Weights:      config.LayerWeights{Base: 1.2, Alpha: -0.1, Spike: -0.1},
		MinOrderSize: 150,
	})
	if err == nil {
		t.Fatal("负权重应被拒绝")
	}
}
