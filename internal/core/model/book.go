// Package model 定义引擎中使用的核心数据结构。
// 包含订单簿、成交记录、订单与分配计划等核心类型。
// 利率与数量一律使用定点数（decimal.Decimal）：
// 订单簿以利率作为映射 key，float64 的舍入会让"相等"的利率得到不同的 key。
package model

import (
	"sort"

	"github.com/shopspring/decimal"

	"funding-liquidity-engine/internal/util/decparse"
)

// BookSide 订单簿方向
type BookSide string

const (
	// SideBid 出借需求方（借入方挂单）
	SideBid BookSide = "bid"
	// SideAsk 出借供给方（出借方挂单）
	SideAsk BookSide = "ask"
)

// Level 订单簿单个档位
// Amount 为无符号数量；方向由所在的盘口一侧承载，而非符号
type Level struct {
	// Rate 利率（定点数）
	Rate decimal.Decimal
	// Amount 该利率上的挂单数量（非负）
	Amount decimal.Decimal
}

// Book 单侧订单簿：规范化利率 key -> 档位
// 不变量：同一利率同一时刻至多出现在一侧
type Book map[string]Level

// NewBook 创建空订单簿
func NewBook() Book {
	return make(Book)
}

// Set 插入或覆盖一个档位
// 参数 rate: 利率
// 参数 amount: 数量（调用方负责传入非负值）
func (b Book) Set(rate, amount decimal.Decimal) {
	b[decparse.Key(rate)] = Level{Rate: rate, Amount: amount}
}

// Remove 移除指定利率的档位
// 利率不存在时为空操作
func (b Book) Remove(rate decimal.Decimal) {
	delete(b, decparse.Key(rate))
}

// Clone 创建订单簿的浅拷贝（档位值为不可变定点数，浅拷贝即安全）
func (b Book) Clone() Book {
	out := make(Book, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// SortedLevels 按利率排序返回档位列表
// 参数 descending: true 按利率从高到低（买盘视角），false 从低到高（卖盘视角）
func (b Book) SortedLevels(descending bool) []Level {
	levels := make([]Level, 0, len(b))
	for _, lv := range b {
		levels = append(levels, lv)
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Rate.GreaterThan(levels[j].Rate)
		}
		return levels[i].Rate.LessThan(levels[j].Rate)
	})
	return levels
}

// Best 返回盘口最优档位
// 参数 descending: true 取最高利率（买盘最优），false 取最低利率（卖盘最优）
// 返回: 最优档位与是否存在
func (b Book) Best(descending bool) (Level, bool) {
	var best Level
	found := false
	for _, lv := range b {
		if !found {
			best = lv
			found = true
			continue
		}
		if descending && lv.Rate.GreaterThan(best.Rate) {
			best = lv
		}
		if !descending && lv.Rate.LessThan(best.Rate) {
			best = lv
		}
	}
	return best, found
}

// TopVolume 统计最优 depth 档的数量合计
// 参数 depth: 档位数
// 参数 descending: 排序方向（买盘 true，卖盘 false）
func (b Book) TopVolume(depth int, descending bool) decimal.Decimal {
	total := decimal.Zero
	for i, lv := range b.SortedLevels(descending) {
		if i >= depth {
			break
		}
		total = total.Add(lv.Amount)
	}
	return total
}

// BookEntry 协议层订单簿条目（快照元素或增量更新）
// 与线上协议一致：符号承载方向，正数量为买盘，负数量为卖盘
type BookEntry struct {
	// Rate 利率
	Rate decimal.Decimal
	// Period 借贷期限（天）
	Period int64
	// Count 该利率上的订单数；0 表示移除该档位
	Count int64
	// Amount 带符号数量：正 -> 买盘，负 -> 卖盘
	Amount decimal.Decimal
}

// IsBid 判断条目归属买盘
func (e BookEntry) IsBid() bool {
	return e.Amount.Sign() > 0
}

// Magnitude 返回数量的绝对值
func (e BookEntry) Magnitude() decimal.Decimal {
	return e.Amount.Abs()
}
