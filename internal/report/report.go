// Package report 生成每日状态报告。
// 报告是对当前状态的纯函数汇总：年化收益率、资金利用率与运行状况描述，
// 格式化为一条可直接投递的文本消息。
package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Report 每日状态报告
type Report struct {
	// APRPercent 年化收益率（百分比）: vwar × 365 × 100
	APRPercent float64
	// UtilizationPercent 资金利用率（百分比）: lent / (available + lent) × 100
	UtilizationPercent float64
	// Conditions 当前运行状况描述
	Conditions []string
}

// Build 汇总当前状态生成报告
// 参数 vwar: 成交量加权平均利率
// 参数 available: 可用余额
// 参数 lent: 已出借余额
// 参数 aggressive: 激进模式标志
// 参数 pendingCount: 挂单数量
func Build(vwar float64, available, lent decimal.Decimal, aggressive bool, pendingCount int) Report {
	r := Report{
		APRPercent: vwar * 365 * 100,
	}

	equity := available.Add(lent)
	if equity.IsPositive() {
		util, _ := lent.Div(equity).Float64()
		r.UtilizationPercent = util * 100
	}

	if aggressive {
		r.Conditions = append(r.Conditions, "激进模式")
	}
	if pendingCount > 0 {
		r.Conditions = append(r.Conditions, fmt.Sprintf("%d 笔挂单", pendingCount))
	}
	if len(r.Conditions) == 0 {
		r.Conditions = append(r.Conditions, "正常运行")
	}

	return r
}

// Format 将报告格式化为通知文本
func (r Report) Format() string {
	var b strings.Builder
	b.WriteString("**资金出借日报**\n")
	fmt.Fprintf(&b, "年化收益率: %.2f%%\n", r.APRPercent)
	fmt.Fprintf(&b, "资金利用率: %.2f%%\n", r.UtilizationPercent)
	fmt.Fprintf(&b, "运行状况: %s", strings.Join(r.Conditions, "、"))
	return b.String()
}
