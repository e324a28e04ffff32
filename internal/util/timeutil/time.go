// Package timeutil 提供时间相关的工具函数。
// 主要用于行情帧时间戳记录与连接静默检测（watchdog）。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前时间的纳秒时间戳
// 使用"单调时钟 + 启动时 Unix 时间"组合实现：
// NowNano = baseUnixNs + time.Since(baseTime).Nanoseconds()
// 系统时间跳变（NTP/手动调整）时时间差仍保持单调，避免静默检测误判。
// 返回: 当前时间的 Unix 纳秒时间戳
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// NowMs 获取当前时间的毫秒时间戳
// 用于与交易所时间戳对比（交易所推送通常使用毫秒）
// 返回: 当前时间的 Unix 毫秒时间戳
func NowMs() int64 {
	return NowNano() / 1_000_000
}

// SinceNano 计算从指定纳秒时间戳到现在的时间差
// 参数 startNs: 开始时间（纳秒）
// 返回: 时间差（time.Duration）
func SinceNano(startNs int64) time.Duration {
	return time.Duration(NowNano() - startNs)
}
