// Package spike 实现吃单量尖峰的滑动窗口异常检测。
// 维护固定容量的吃单成交量环形缓冲，按需计算当前量相对窗口的 Z 分数。
// 冷启动（样本不足 10 个）或零离散（σ=0）时返回 0，避免除零与虚假触发。
package spike

import (
	"math"
)

// defaultWindow 默认滑动窗口容量
const defaultWindow = 300

// minSamples Z 分数生效所需的最少样本数
const minSamples = 10

// Predictor 吃单量尖峰预测器
// 环形缓冲保存无符号吃单量，满后覆盖最旧样本
type Predictor struct {
	// buf 环形缓冲区
	buf []float64
	// pos 下一个写入位置
	pos int
	// full 是否已写满一轮
	full bool
}

// New 创建尖峰预测器
// 参数 window: 窗口容量；非正值时使用默认 300
func New(window int) *Predictor {
	if window <= 0 {
		window = defaultWindow
	}
	return &Predictor{
		buf: make([]float64, window),
	}
}

// Add 追加一个吃单量样本
// 满容量时覆盖最旧样本
// 参数 amount: 无符号吃单量（调用方传入绝对值）
func (p *Predictor) Add(amount float64) {
	p.buf[p.pos] = amount
	p.pos++
	if p.pos >= len(p.buf) {
		p.pos = 0
		p.full = true
	}
}

// Len 返回当前样本数
func (p *Predictor) Len() int {
	if p.full {
		return len(p.buf)
	}
	return p.pos
}

// ZScore 计算当前量相对窗口的标准化偏差
// Z = (current - mean) / σ，σ 为总体标准差
// 参数 current: 当前吃单量
// 返回: Z 分数；样本不足 10 个或 σ=0 时返回 0
func (p *Predictor) ZScore(current float64) float64 {
	n := p.Len()
	if n < minSamples {
		return 0
	}

	samples := p.buf[:n]

	minV, maxV := samples[0], samples[0]
	var sum float64
	for _, v := range samples {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	// 恒定窗口：σ 按定义为 0，直接短路，避免浮点累加噪声放大为虚假 Z 值
	if minV == maxV {
		return 0
	}

	mean := sum / float64(n)
	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))
	if std == 0 {
		return 0
	}

	return (current - mean) / std
}

// IsAggressive 判断当前量是否构成尖峰
// 参数 current: 当前吃单量
// 参数 threshold: Z 分数阈值（通常为 2.0）
func (p *Predictor) IsAggressive(current, threshold float64) bool {
	return p.ZScore(current) > threshold
}
