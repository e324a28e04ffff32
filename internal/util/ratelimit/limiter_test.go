// Package ratelimit 令牌桶限流器测试
package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_BurstWithinCapacity(t *testing.T) {
	// 容量 5、窗口 1s：连续 5 次 Acquire 应立即返回
	l := New(5, time.Second)

	start := time.Now()
	for i := 0; i < 5; i++ {
		l.Acquire()
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Fatalf("连续 %d 次 Acquire 耗时 %v，应立即返回", 5, elapsed)
	}
}

func TestLimiter_BlocksBeyondCapacity(t *testing.T) {
	// 第 capacity+1 次调用至少阻塞 window/capacity
	l := New(5, time.Second)

	for i := 0; i < 5; i++ {
		l.Acquire()
	}

	start := time.Now()
	l.Acquire()
	elapsed := time.Since(start)

	floor := time.Second / 5
	// 允许 10% 的调度误差下界
	if elapsed < floor*9/10 {
		t.Fatalf("第 6 次 Acquire 阻塞 %v，应至少 %v", elapsed, floor)
	}
}

func TestLimiter_NoRecheckAfterSleep(t *testing.T) {
	// 刻意保留的行为：睡醒后令牌清零、时钟重置，不复查
	// 桶耗尽后紧跟的一次 Acquire 返回时余额应为 0
	l := New(2, 200*time.Millisecond)

	l.Acquire()
	l.Acquire()
	l.Acquire() // 触发等待路径

	if got := l.Tokens(); got != 0 {
		t.Fatalf("等待路径返回后 Tokens=%v, want 0", got)
	}
}

func TestLimiter_ContendedFloorBetweenGrants(t *testing.T) {
	// 争用时相邻放行之间存在 window/capacity 的硬下限
	l := New(4, 400*time.Millisecond)

	// 先耗尽桶
	for i := 0; i < 4; i++ {
		l.Acquire()
	}

	const callers = 3
	times := make([]time.Time, callers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	idx := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
			mu.Lock()
			times[idx] = time.Now()
			idx++
			mu.Unlock()
		}()
	}
	wg.Wait()

	floor := 400 * time.Millisecond / 4
	for i := 1; i < callers; i++ {
		gap := times[i].Sub(times[i-1])
		if gap < floor*8/10 {
			t.Fatalf("第 %d 与 %d 次放行间隔 %v，应至少接近 %v", i-1, i, gap, floor)
		}
	}
}

func TestLimiter_RefillCappedAtCapacity(t *testing.T) {
	// 长时间空闲后余额不超过容量
	l := New(3, 30*time.Millisecond)

	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		l.Acquire()
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("补满后的 3 次 Acquire 耗时 %v，应立即返回", elapsed)
	}

	// 第 4 次应进入等待路径
	start = time.Now()
	l.Acquire()
	if elapsed := time.Since(start); elapsed < 8*time.Millisecond {
		t.Fatalf("超出容量的 Acquire 仅阻塞 %v，补充未被限制在容量内", elapsed)
	}
}
