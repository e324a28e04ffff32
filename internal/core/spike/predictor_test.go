// Package spike 尖峰预测器测试
package spike

import (
	"math"
	"testing"
)

func TestZScore_ColdStartReturnsZero(t *testing.T) {
	p := New(300)

	// 样本不足 10 个时无论输入多大都返回 0
	for i := 0; i < 9; i++ {
		p.Add(float64(i * 100))
		if z := p.ZScore(1e9); z != 0 {
			t.Fatalf("样本数 %d 时 ZScore=%v, want 0", p.Len(), z)
		}
	}
}

func TestZScore_ConstantWindowIsZero(t *testing.T) {
	p := New(300)

	for i := 0; i < 50; i++ {
		p.Add(42.5)
	}

	if z := p.ZScore(42.5); z != 0 {
		t.Fatalf("恒定窗口对同值的 ZScore=%v, want 0", z)
	}
}

func TestZScore_StandardizedDeviation(t *testing.T) {
	p := New(300)

	// 窗口 {0,2} 重复：均值 1，总体标准差 1
	for i := 0; i < 20; i++ {
		p.Add(float64((i % 2) * 2))
	}

	if z := p.ZScore(3); math.Abs(z-2.0) > 1e-12 {
		t.Fatalf("ZScore(3)=%v, want 2", z)
	}
	if z := p.ZScore(1); math.Abs(z) > 1e-12 {
		t.Fatalf("ZScore(均值)=%v, want 0", z)
	}
	if z := p.ZScore(-1); math.Abs(z+2.0) > 1e-12 {
		t.Fatalf("ZScore(-1)=%v, want -2", z)
	}
}

func TestAdd_EvictsOldestOnOverflow(t *testing.T) {
	p := New(10)

	// 先填入 10 个 100，再追加 10 个 0：旧样本应被完全覆盖
	for i := 0; i < 10; i++ {
		p.Add(100)
	}
	for i := 0; i < 10; i++ {
		p.Add(0)
	}

	if n := p.Len(); n != 10 {
		t.Fatalf("Len=%d, want 10", n)
	}
	// 覆盖后窗口恒为 0
	if z := p.ZScore(0); z != 0 {
		t.Fatalf("覆盖后 ZScore=%v, want 0（窗口已全为 0）", z)
	}
}

func TestIsAggressive_Threshold(t *testing.T) {
	p := New(300)

	for i := 0; i < 20; i++ {
		p.Add(float64((i % 2) * 2)) // 均值 1，σ 1
	}

	if !p.IsAggressive(3.5, 2.0) {
		t.Fatal("Z=2.5 超过阈值 2.0，应判定为尖峰")
	}
	if p.IsAggressive(3.0, 2.0) {
		t.Fatal("Z=2.0 未严格超过阈值，不应判定为尖峰")
	}
	if p.IsAggressive(1.0, 2.0) {
		t.Fatal("Z=0 不应判定为尖峰")
	}
}

func TestNew_NonPositiveWindowUsesDefault(t *testing.T) {
	p := New(0)
	if len(p.buf) != defaultWindow {
		t.Fatalf("窗口容量=%d, want %d", len(p.buf), defaultWindow)
	}
}
