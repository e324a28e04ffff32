// Package signal 实现市场状态快照上的统计信号计算。
// 所有函数均为纯函数：输入相同则输出逐位一致，无任何副作用。
// 退化输入（空历史、零成交量、空盘口）一律返回定义好的零值而非错误，
// 这些是启动初期的正常稳态，不属于失败。
// 聚合在定点数上完成，只在最终结果处转换为 float64。
package signal

import (
	"math"

	"github.com/shopspring/decimal"

	"funding-liquidity-engine/internal/core/model"
)

// VWAR 计算成交量加权平均利率
// VWAR = Σ(rate·|amount|) / Σ|amount|
// 参数 trades: 成交集合
// 返回: 加权平均利率；集合为空或总量为 0 时返回 0
func VWAR(trades []model.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}

	totalVol := decimal.Zero
	weightedSum := decimal.Zero
	for _, t := range trades {
		mag := t.Magnitude()
		totalVol = totalVol.Add(mag)
		weightedSum = weightedSum.Add(t.Rate.Mul(mag))
	}

	if totalVol.IsZero() {
		return 0
	}

	v, _ := weightedSum.Div(totalVol).Float64()
	return v
}

// Volatility 计算最近 window 笔成交利率的总体标准差
// 历史不足 window 时使用全部可用记录
// 参数 trades: 成交集合（插入有序，最新在尾部）
// 参数 window: 窗口大小
// 返回: 总体标准差；不足 2 笔时返回 0
func Volatility(trades []model.Trade, window int) float64 {
	if len(trades) < 2 {
		return 0
	}
	if window <= 0 {
		window = 50
	}

	recent := trades
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	if len(recent) < 2 {
		return 0
	}

	rates := make([]float64, len(recent))
	var sum float64
	minR, maxR := 0.0, 0.0
	for i, t := range recent {
		r, _ := t.Rate.Float64()
		rates[i] = r
		sum += r
		if i == 0 || r < minR {
			minR = r
		}
		if i == 0 || r > maxR {
			maxR = r
		}
	}
	// 恒定序列：σ 按定义为 0，直接短路，避免均值累加的舍入残差泄漏为非零波动率
	if minR == maxR {
		return 0
	}
	mean := sum / float64(len(rates))

	var sq float64
	for _, r := range rates {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(rates)))
}

// DepthSkew 计算订单簿深度偏斜
// Skew = (bidVol - askVol) / (bidVol + askVol)，基于双侧最优 depth 档
// 买盘按利率降序、卖盘按利率升序取最优档位
// 参数 bids: 买盘
// 参数 asks: 卖盘
// 参数 depth: 档位数
// 返回: 偏斜值，范围 [-1, 1]；双侧总量为 0 时返回 0
func DepthSkew(bids, asks model.Book, depth int) float64 {
	if depth <= 0 {
		depth = 10
	}

	bidVol := bids.TopVolume(depth, true)
	askVol := asks.TopVolume(depth, false)

	total := bidVol.Add(askVol)
	if total.IsZero() {
		return 0
	}

	v, _ := bidVol.Sub(askVol).Div(total).Float64()
	return v
}

// OFI 计算两个订单簿快照之间的订单流不平衡
// OFI = Δ(最优 depth 档买盘量) - Δ(最优 depth 档卖盘量)
// 动量型信号：符号与幅度均无界，不是概率
// 参数 currBids, currAsks: 当前快照
// 参数 prevBids, prevAsks: 前一快照
// 参数 depth: 档位数
// 返回: 不平衡值；正为净买压，负为净卖压
func OFI(currBids, currAsks, prevBids, prevAsks model.Book, depth int) float64 {
	if depth <= 0 {
		depth = 5
	}

	deltaBid := currBids.TopVolume(depth, true).Sub(prevBids.TopVolume(depth, true))
	deltaAsk := currAsks.TopVolume(depth, false).Sub(prevAsks.TopVolume(depth, false))

	v, _ := deltaBid.Sub(deltaAsk).Float64()
	return v
}
