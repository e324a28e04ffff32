// Package model 定义引擎中使用的核心数据结构。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderKind 订单类型
type OrderKind string

const (
	// OrderKindLimit 限价资金挂单
	OrderKindLimit OrderKind = "LIMIT"
)

// Order 交易所已确认的资金挂单
// ID 由交易所分配且全局唯一；撤销、成交或过期后从挂单集合移除
type Order struct {
	// ID 交易所分配的订单 ID
	ID int64
	// Amount 挂单金额
	Amount decimal.Decimal
	// Rate 挂单利率
	Rate decimal.Decimal
	// Period 借贷期限（天）
	Period int
	// SubmittedAt 提交时间
	SubmittedAt time.Time
	// Kind 订单类型
	Kind OrderKind
	// Layer 产生该订单的风险层；再平衡扫描按层匹配目标利率
	Layer LayerKind
}

// RestingAge 返回订单的挂单时长
// 参数 now: 当前时间
func (o Order) RestingAge(now time.Time) time.Duration {
	return now.Sub(o.SubmittedAt)
}
