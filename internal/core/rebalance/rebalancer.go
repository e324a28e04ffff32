// Package rebalance 实现在途挂单的撤换单效率决策。
// 效率分数 eta 将"利率改进 × 换算常数"与"市场利率 × 时间成本"相除，
// 只有改进明显超过执行风险（eta > 阈值）时才值得撤单重挂。
// 调用之间不保留任何状态。
package rebalance

// CalibrationK 利率改进到可比单位的换算常数
// 对应两天期限的分钟数（48h × 60），与效率阈值一同标定
const CalibrationK = 2880.0

// Rebalancer 撤换单决策器
type Rebalancer struct {
	// threshold 效率阈值：eta 严格大于该值才执行撤换单
	threshold float64
}

// New 创建撤换单决策器
// 参数 threshold: 效率阈值（通常为 1.25）
func New(threshold float64) *Rebalancer {
	if threshold <= 0 {
		threshold = 1.25
	}
	return &Rebalancer{threshold: threshold}
}

// Efficiency 计算撤换单效率分数
// eta = ((rTarget - rCurrent) × 2880) / (rMarket × (tWait + tExec))
// 参数 rTarget: 目标利率
// 参数 rCurrent: 当前挂单利率
// 参数 rMarket: 市场参考利率（通常为 VWAR）
// 参数 tWait: 预期排队等待时间（秒）
// 参数 tExec: 撤换单执行耗时估计（秒）
// 返回: 效率分数；rMarket 为 0 或 tWait+tExec 为 0 时返回 0
// （没有可建模的时间成本时不允许触发撤换单）
func (r *Rebalancer) Efficiency(rTarget, rCurrent, rMarket, tWait, tExec float64) float64 {
	if rMarket == 0 || tWait+tExec == 0 {
		return 0
	}
	return ((rTarget - rCurrent) * CalibrationK) / (rMarket * (tWait + tExec))
}

// ShouldRebalance 判断效率分数是否足以执行撤换单
// 参数 eta: 效率分数
// 返回: eta 严格大于阈值时为 true
func (r *Rebalancer) ShouldRebalance(eta float64) bool {
	return eta > r.threshold
}

// Threshold 返回当前效率阈值
func (r *Rebalancer) Threshold() float64 {
	return r.threshold
}
