// Package state 市场状态测试
package state

import (
	"testing"

	"github.com/shopspring/decimal"

	"funding-liquidity-engine/internal/core/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func entry(rate string, count int64, amount string) model.BookEntry {
	return model.BookEntry{
		Rate:   dec(rate),
		Period: 2,
		Count:  count,
		Amount: dec(amount),
	}
}

func TestReplaceBook_SignSplitsSides(t *testing.T) {
	s := New()
	s.ReplaceBook([]model.BookEntry{
		entry("0.0001", 3, "500"),    // 正数量 -> 买盘
		entry("0.0002", 1, "-300"),   // 负数量 -> 卖盘，存绝对值
		entry("0.00015", 2, "120.5"), // 买盘
	})

	bids, asks := s.SnapshotBook()
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("bids=%d asks=%d, want 2/1", len(bids), len(asks))
	}

	lv, ok := asks["0.0002"]
	if !ok {
		t.Fatal("卖盘应包含 0.0002 档位")
	}
	if !lv.Amount.Equal(dec("300")) {
		t.Fatalf("卖盘数量=%s, want 300（绝对值）", lv.Amount)
	}
}

func TestApplyBookUpdate_ZeroCountRemovesBothSides(t *testing.T) {
	s := New()
	s.ReplaceBook([]model.BookEntry{
		entry("0.0001", 3, "500"),
		entry("0.0002", 1, "-300"),
	})

	// count=0 的更新同时从两侧移除该利率
	s.ApplyBookUpdate(entry("0.0001", 0, "1"))
	s.ApplyBookUpdate(entry("0.0002", 0, "-1"))

	bids, asks := s.SnapshotBook()
	if len(bids) != 0 || len(asks) != 0 {
		t.Fatalf("bids=%d asks=%d, want 0/0", len(bids), len(asks))
	}
}

func TestApplyBookUpdate_InsertBySign(t *testing.T) {
	s := New()

	// 此前不存在的利率、非零数量：按符号恰好插入一侧
	s.ApplyBookUpdate(entry("0.00012", 2, "250"))

	bids, asks := s.SnapshotBook()
	if _, ok := bids["0.00012"]; !ok {
		t.Fatal("正数量更新应插入买盘")
	}
	if _, ok := asks["0.00012"]; ok {
		t.Fatal("正数量更新不应出现在卖盘")
	}

	// 同一利率翻转为负数量：迁移到卖盘且从买盘移除
	s.ApplyBookUpdate(entry("0.00012", 2, "-250"))
	bids, asks = s.SnapshotBook()
	if _, ok := bids["0.00012"]; ok {
		t.Fatal("翻转后买盘不应保留该利率")
	}
	if lv, ok := asks["0.00012"]; !ok || !lv.Amount.Equal(dec("250")) {
		t.Fatalf("翻转后卖盘应持有绝对值 250, got %+v ok=%v", lv, ok)
	}
}

func TestAppendTrades_CapAndFIFOEviction(t *testing.T) {
	s := New()

	// 写入 1100 笔成交，MTS 单调递增便于按值校验淘汰顺序
	batch := make([]model.Trade, 0, 1100)
	for i := 0; i < 1100; i++ {
		batch = append(batch, model.Trade{
			Rate:   dec("0.0001"),
			Amount: decimal.NewFromInt(int64(i)),
			MTS:    int64(i),
		})
	}
	s.AppendTrades(batch)

	trades := s.SnapshotTrades()
	if len(trades) != model.TradeHistoryCap {
		t.Fatalf("历史长度=%d, want %d", len(trades), model.TradeHistoryCap)
	}
	// 最旧的 100 笔（MTS 0-99）应已被淘汰
	if trades[0].MTS != 100 {
		t.Fatalf("最旧保留记录 MTS=%d, want 100", trades[0].MTS)
	}
	if trades[len(trades)-1].MTS != 1099 {
		t.Fatalf("最新记录 MTS=%d, want 1099", trades[len(trades)-1].MTS)
	}
}

func TestAppendTrades_IncrementalStaysBounded(t *testing.T) {
	s := New()

	for i := 0; i < 1500; i++ {
		s.AppendTrades([]model.Trade{{Rate: dec("0.0001"), Amount: decimal.NewFromInt(1), MTS: int64(i)}})
		if n := len(s.SnapshotTrades()); n > model.TradeHistoryCap {
			t.Fatalf("第 %d 次追加后长度=%d，超过上限 %d", i, n, model.TradeHistoryCap)
		}
	}

	trades := s.SnapshotTrades()
	if trades[0].MTS != 500 {
		t.Fatalf("逐笔追加后最旧记录 MTS=%d, want 500", trades[0].MTS)
	}
}

func TestOrders_AddRemove(t *testing.T) {
	s := New()

	s.AddOrder(model.Order{ID: 42, Amount: dec("400"), Rate: dec("0.0001"), Period: 2, Kind: model.OrderKindLimit, Layer: model.LayerBase})
	s.AddOrder(model.Order{ID: 43, Amount: dec("300"), Rate: dec("0.000105"), Period: 2, Kind: model.OrderKindLimit, Layer: model.LayerAlpha})

	if n := s.PendingOrderCount(); n != 2 {
		t.Fatalf("挂单数=%d, want 2", n)
	}

	s.RemoveOrder(42)
	s.RemoveOrder(999) // 不存在的 ID 为空操作

	orders := s.PendingOrders()
	if len(orders) != 1 || orders[0].ID != 43 {
		t.Fatalf("挂单集合=%+v, want 仅剩 ID 43", orders)
	}
}

func TestBalancesAndEquity(t *testing.T) {
	s := New()

	if !s.TotalEquity().Equal(decimal.Zero) {
		t.Fatalf("初始权益=%s, want 0", s.TotalEquity())
	}

	s.UpdateBalance(dec("1000"), dec("3000"))
	if !s.AvailableBalance().Equal(dec("1000")) {
		t.Fatalf("可用余额=%s, want 1000", s.AvailableBalance())
	}
	if !s.TotalEquity().Equal(dec("4000")) {
		t.Fatalf("总权益=%s, want 4000", s.TotalEquity())
	}
}

func TestFlags(t *testing.T) {
	s := New()

	if s.IsAggressive() || s.IsConnected() {
		t.Fatal("初始标志应全部为 false")
	}

	s.SetAggressive(true)
	s.SetConnected(true)
	s.SetFundingRate(dec("0.0006"))

	if !s.IsAggressive() || !s.IsConnected() {
		t.Fatal("标志设置未生效")
	}
	if !s.FundingRate().Equal(dec("0.0006")) {
		t.Fatalf("资金费率=%s, want 0.0006", s.FundingRate())
	}
}
