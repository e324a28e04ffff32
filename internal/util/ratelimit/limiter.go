// Package ratelimit 实现保护认证 REST 调用的令牌桶。
// 令牌按 capacity/window 的速率连续线性补充（非离散 tick），上限为 capacity。
// Acquire 阻塞直到取得一个令牌；没有错误分支，调用最终总会成功。
package ratelimit

import (
	"sync"
	"time"
)

// Limiter 令牌桶限流器
// 令牌余额与补充时钟受同一把锁保护，并发调用方不会同时观察到 ≥1 个令牌而重复消费。
//
// 已知行为（刻意保留）：当令牌不足时，调用方计算凑满 1 个令牌所需的精确等待时间
// (1 - tokens) * (window / capacity)，睡眠后直接清零令牌并重置补充时钟，醒来后不再复查。
// 锁在睡眠期间持续持有，争用时相邻两次放行之间因此存在 window/capacity 的硬下限，
// 高争用下会在该下限间隔上整齐放行而非真正的最大速率限流。
// golang.org/x/time/rate 的 Wait 会重新预约令牌，无法表达这一语义。
type Limiter struct {
	// mu 保护 tokens 与 lastRefill
	mu sync.Mutex
	// capacity 桶容量（窗口内允许的调用次数）
	capacity float64
	// window 补充窗口
	window time.Duration
	// tokens 当前令牌余额，范围 [0, capacity]
	tokens float64
	// lastRefill 上次补充时刻
	lastRefill time.Time
}

// New 创建令牌桶限流器
// 参数 capacity: 桶容量（如 30 次）
// 参数 window: 补充窗口（如 1 分钟）
func New(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		capacity:   float64(capacity),
		window:     window,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Acquire 阻塞直到取得一个令牌
// 桶满时连续 capacity 次调用立即返回；之后的调用至少等待 window/capacity。
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill)

	// 线性补充：经过时间 × (capacity/window)，上限 capacity
	refill := elapsed.Seconds() * (l.capacity / l.window.Seconds())
	if refill > 0 {
		l.tokens += refill
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.lastRefill = now
	}

	if l.tokens >= 1 {
		l.tokens--
		return
	}

	// 令牌不足：睡满精确缺口后直接消费，不再复查（见类型注释）
	wait := time.Duration((1 - l.tokens) * float64(l.window) / l.capacity)
	time.Sleep(wait)
	l.tokens = 0
	l.lastRefill = time.Now()
}

// Tokens 返回当前令牌余额（不触发补充）
// 仅用于测试与指标观测
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens
}
