// Package model 定义引擎中使用的核心数据结构。
package model

import (
	"github.com/shopspring/decimal"
)

// LayerKind 风险层标识
type LayerKind string

const (
	// LayerBase 基础层：追踪当前最优买价
	LayerBase LayerKind = "BASE"
	// LayerAlpha 阿尔法层：mu + 0.5σ
	LayerAlpha LayerKind = "ALPHA"
	// LayerSpike 尖峰层：mu + 3σ
	LayerSpike LayerKind = "SPIKE"
)

// PlanLayer 分配计划中的单个层
type PlanLayer struct {
	// Kind 风险层标识
	Kind LayerKind `json:"kind"`
	// Amount 分配金额
	Amount decimal.Decimal `json:"amount"`
	// Rate 目标利率；TrackBestBid 为 true 时该字段无效
	Rate decimal.Decimal `json:"rate"`
	// TrackBestBid 基础层标记：目标利率由调用方在提交时解析为当前最优买价
	TrackBestBid bool `json:"track_best_bid"`
}

// Plan 资金分配计划
// 由分层策略纯函数生成；生成本身不提交任何订单
type Plan struct {
	// ID 计划标识（由引擎在生成后分配，用于决策日志关联）
	ID string `json:"id"`
	// Mu 目标均值利率 vwar * (1 + bias)
	Mu float64 `json:"mu"`
	// Sigma 波动率估计
	Sigma float64 `json:"sigma"`
	// Layers 通过最小金额门槛的层；金额不足的层被静默丢弃
	Layers []PlanLayer `json:"layers"`
}

// Layer 按标识查找层
// 返回: 匹配的层与是否存在
func (p Plan) Layer(kind LayerKind) (PlanLayer, bool) {
	for _, l := range p.Layers {
		if l.Kind == kind {
			return l, true
		}
	}
	return PlanLayer{}, false
}
