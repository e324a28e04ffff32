// Package model 定义引擎中使用的核心数据结构。
package model

import (
	"github.com/shopspring/decimal"
)

// TradeHistoryCap 成交历史保留上限
// 超出后按 FIFO 淘汰最旧记录
const TradeHistoryCap = 1000

// Trade 单笔成交记录
// 仅保留利率、带符号数量与交易所时间戳（协议中的其余字段在边界处丢弃）
type Trade struct {
	// Rate 成交利率（定点数）
	Rate decimal.Decimal
	// Amount 带符号成交数量；符号承载主动方向
	Amount decimal.Decimal
	// MTS 交易所时间戳（毫秒）
	MTS int64
}

// Magnitude 返回成交数量的绝对值
// VWAR 与吃单量统计均按绝对量加权
func (t Trade) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}
