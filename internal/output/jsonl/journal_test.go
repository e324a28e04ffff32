// Package jsonl 决策日志测试
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestJournal_WriteAndClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")

	j, err := NewJournal(path, 100)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}

	for i := 0; i < 10; i++ {
		rec := CycleRecord{
			PlanID:     "plan",
			TSMs:       int64(i),
			VWAR:       0.0001,
			Volatility: 0.00001,
			Capital:    "1000",
			DryRun:     true,
			Layers: []LayerRecord{
				{Kind: "BASE", Amount: "400", Rate: "0.0001", TrackBestBid: true},
			},
		}
		if err := j.WriteCycle(rec); err != nil {
			t.Fatalf("WriteCycle: %v", err)
		}
	}
	if err := j.WriteMetrics(MetricsRecord{TSMs: 1, ReconnectCount: 2}); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("第 %d 行不是合法 JSON: %v", lines+1, err)
		}
		lines++
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if lines != 11 {
		t.Fatalf("lines=%d, want 11", lines)
	}
}

func TestJournal_CycleRecordFields(t *testing.T) {
	rec := CycleRecord{
		PlanID:      "b2c9",
		TSMs:        1700000000000,
		VWAR:        0.0002,
		Volatility:  0.00001,
		Bias:        0.15,
		ZScore:      2.5,
		FundingRate: "0.0007",
		Aggressive:  true,
		Capital:     "1000",
		Layers: []LayerRecord{
			{Kind: "ALPHA", Amount: "300", Rate: "0.000235", OrderID: 7, Submitted: true},
		},
		Rebalances: []RebalanceRecord{
			{OrderID: 5, Eta: 41.14, Triggered: true, NewOrderID: 7},
		},
	}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	required := []string{
		"plan_id", "ts_ms", "vwar", "volatility", "bias", "z_score",
		"funding_rate", "aggressive", "capital", "dry_run", "layers", "rebalances",
	}
	for _, k := range required {
		if _, ok := m[k]; !ok {
			t.Fatalf("周期记录缺少字段 %q", k)
		}
	}
}

func TestJournal_WriteAfterClose(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(filepath.Join(dir, "x.jsonl"), 10)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := j.WriteCycle(CycleRecord{}); err == nil {
		t.Fatal("关闭后写入应返回错误")
	}
	// 幂等关闭
	if err := j.Close(); err != nil {
		t.Fatalf("重复 Close: %v", err)
	}
}
