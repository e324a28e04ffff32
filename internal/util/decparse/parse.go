// Package decparse 提供行情边界的定点数解析函数。
// 利率与数量在订单簿中作为映射 key 使用，必须保持定点语义：
// 两个"相等"的利率若经过 float64 往返可能产生不同的 key，导致档位错乱。
// 因此所有数值在边界处直接从 JSON 原文（json.Number）解析为 decimal.Decimal，
// 统计计算只在聚合之后转换为 float64。
package decparse

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Number 将 json.Number 解析为 decimal.Decimal
// 直接基于 JSON 原文解析，不经过 float64 中转
// 参数 n: JSON 数值
// 返回: 解析后的定点数和可能的错误
func Number(n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析定点数失败: %w", err)
	}
	return d, nil
}

// MustNumber 解析 json.Number，失败时返回 0
// 用于已由协议保证格式的字段，简化错误处理
// 参数 n: JSON 数值
// 返回: 解析后的定点数，失败返回 0
func MustNumber(n json.Number) decimal.Decimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Int 将 json.Number 解析为 int64
// 容忍 "17.0" 这类带小数点的整数表示（部分网关会这样编码 chanId/count）
// 参数 n: JSON 数值
// 返回: 解析后的整数和可能的错误
func Int(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("解析整数失败: %w", err)
	}
	return d.IntPart(), nil
}

// Key 生成订单簿映射使用的规范化 key
// 同一利率无论协议如何编码（"0.0001" 与 "1e-4"）都映射到同一 key
// 参数 d: 利率定点数
// 返回: 规范化字符串 key
func Key(d decimal.Decimal) string {
	return d.String()
}
