// Package strategy 实现资金分层分配算法。
// 将 (可用资金, VWAR, 波动率, 偏置) 转换为目标挂单计划：
// Base 层追踪最优买价，Alpha 层挂 mu+0.5σ，Spike 层挂 mu+3σ。
// 生成计划是纯函数，不提交任何订单。
package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/core/model"
)

// alphaSigmaMult Alpha 层相对均值的波动率偏移倍数
const alphaSigmaMult = 0.5

// spikeSigmaMult Spike 层相对均值的波动率偏移倍数
const spikeSigmaMult = 3.0

// Distribution 资金分层策略
// 权重与最小挂单金额在构造时固定，运行期间不变
type Distribution struct {
	// weights 各层资金权重，构造时已验证加和为 1.0
	weights config.LayerWeights
	// minOrder 最小挂单金额；低于该值的层被静默丢弃
	minOrder decimal.Decimal
}

// New 创建分层策略
// 权重之和必须恰好为 1.0（资金不超分、不漏分的不变量）
// 参数 cfg: 策略配置
// 返回: 策略实例；权重不合法时返回错误
func New(cfg config.StrategyConfig) (*Distribution, error) {
	if math.Abs(cfg.Weights.Sum()-1.0) > 1e-9 {
		return nil, fmt.Errorf("分层权重之和必须为 1.0，当前为 %v", cfg.Weights.Sum())
	}
	if cfg.Weights.Base < 0 || cfg.Weights.Alpha < 0 || cfg.Weights.Spike < 0 {
		return nil, fmt.Errorf("分层权重不能为负数: %+v", cfg.Weights)
	}
	return &Distribution{
		weights:  cfg.Weights,
		minOrder: decimal.NewFromFloat(cfg.MinOrderSize),
	}, nil
}

// GenerateOrders 生成目标分配计划
// mu = vwar * (1 + bias)；各层金额 = 可用资金 × 层权重。
// Base 层只预留资金份额并标记"追踪最优买价"，具体利率由调用方在提交时解析，
// 只要份额为正就保留；Alpha 层利率 mu + 0.5σ，Spike 层利率 mu + 3σ，
// 金额低于最小挂单门槛时不进入计划。丢层是刻意的阈值行为，不是失败。
// 参数 capital: 可用资金
// 参数 vwar: 成交量加权平均利率
// 参数 volatility: 波动率估计 σ
// 参数 bias: 信号偏置（如资金费率偏置 +0.05、激进模式 +0.10）
// 返回: 分配计划
func (d *Distribution) GenerateOrders(capital decimal.Decimal, vwar, volatility, bias float64) model.Plan {
	mu := vwar * (1 + bias)
	sigma := volatility

	plan := model.Plan{
		Mu:    mu,
		Sigma: sigma,
	}

	baseAmt := capital.Mul(decimal.NewFromFloat(d.weights.Base))
	alphaAmt := capital.Mul(decimal.NewFromFloat(d.weights.Alpha))
	spikeAmt := capital.Mul(decimal.NewFromFloat(d.weights.Spike))

	if baseAmt.IsPositive() {
		plan.Layers = append(plan.Layers, model.PlanLayer{
			Kind:         model.LayerBase,
			Amount:       baseAmt,
			TrackBestBid: true,
		})
	}

	if alphaAmt.GreaterThanOrEqual(d.minOrder) {
		plan.Layers = append(plan.Layers, model.PlanLayer{
			Kind:   model.LayerAlpha,
			Amount: alphaAmt,
			Rate:   decimal.NewFromFloat(mu + alphaSigmaMult*sigma),
		})
	}

	if spikeAmt.GreaterThanOrEqual(d.minOrder) {
		plan.Layers = append(plan.Layers, model.PlanLayer{
			Kind:   model.LayerSpike,
			Amount: spikeAmt,
			Rate:   decimal.NewFromFloat(mu + spikeSigmaMult*sigma),
		})
	}

	return plan
}

// MinOrderSize 返回最小挂单金额
func (d *Distribution) MinOrderSize() decimal.Decimal {
	return d.minOrder
}
