// Package state 维护单一资金币种的本地市场视图。
// MarketState 是进程内唯一的可变共享资源：行情接入协程独占写入
// 订单簿/成交/连接字段，分配协程独占写入余额/挂单字段。
// 跨协程读取通过快照访问器完成；Go 中跨协程的 map 读写即使满足
// 单写者约定也构成数据竞争，因此所有访问经由读写锁串行化。
package state

import (
	"sync"

	"github.com/shopspring/decimal"

	"funding-liquidity-engine/internal/core/model"
	"funding-liquidity-engine/internal/util/timeutil"
)

// MarketState 本地市场状态
// 进程启动时以零余额与空盘口创建一次，整个运行期间不销毁
type MarketState struct {
	mu sync.RWMutex

	// available 可用余额
	available decimal.Decimal
	// lent 已出借余额
	lent decimal.Decimal
	// pendingOrders 挂单集合，按交易所订单 ID 索引
	pendingOrders map[int64]model.Order

	// bids 买盘档位映射
	bids model.Book
	// asks 卖盘档位映射
	asks model.Book
	// trades 成交历史，插入有序，上限 model.TradeHistoryCap，FIFO 淘汰
	trades []model.Trade

	// fundingRate 最近一次外部永续资金费率读数
	fundingRate decimal.Decimal
	// aggressive 激进模式标志（吃单量 Z 分数超阈值）
	aggressive bool
	// connected 行情连接是否处于 Streaming 状态
	connected bool
	// lastUpdateNs 最近一次状态更新时间（纳秒）
	lastUpdateNs int64
}

// New 创建初始市场状态
func New() *MarketState {
	return &MarketState{
		available:     decimal.Zero,
		lent:          decimal.Zero,
		pendingOrders: make(map[int64]model.Order),
		bids:          model.NewBook(),
		asks:          model.NewBook(),
		trades:        make([]model.Trade, 0, model.TradeHistoryCap),
		lastUpdateNs:  timeutil.NowNano(),
	}
}

// ReplaceBook 用快照整体替换买卖盘
// 快照条目按符号分侧：正数量入买盘，负数量取绝对值入卖盘
// 参数 entries: 协议快照条目
func (s *MarketState) ReplaceBook(entries []model.BookEntry) {
	bids := model.NewBook()
	asks := model.NewBook()
	for _, e := range entries {
		if e.IsBid() {
			bids.Set(e.Rate, e.Magnitude())
		} else {
			asks.Set(e.Rate, e.Magnitude())
		}
	}

	s.mu.Lock()
	s.bids = bids
	s.asks = asks
	s.lastUpdateNs = timeutil.NowNano()
	s.mu.Unlock()
}

// ApplyBookUpdate 应用增量订单簿更新
// count == 0 时从两侧同时移除该利率；否则按符号插入/覆盖对应一侧。
// 快照整体替换、增量逐档应用的不对称性是协议约定，必须严格保持。
// 参数 e: 协议增量条目
func (s *MarketState) ApplyBookUpdate(e model.BookEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Count == 0 {
		s.bids.Remove(e.Rate)
		s.asks.Remove(e.Rate)
	} else if e.IsBid() {
		s.bids.Set(e.Rate, e.Magnitude())
		s.asks.Remove(e.Rate)
	} else {
		s.asks.Set(e.Rate, e.Magnitude())
		s.bids.Remove(e.Rate)
	}
	s.lastUpdateNs = timeutil.NowNano()
}

// AppendTrades 追加成交记录并裁剪历史
// 每次追加后历史长度不超过 model.TradeHistoryCap，最旧记录先被淘汰
// 参数 trades: 按到达顺序排列的成交
func (s *MarketState) AppendTrades(trades []model.Trade) {
	if len(trades) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, trades...)
	if excess := len(s.trades) - model.TradeHistoryCap; excess > 0 {
		s.trades = append(s.trades[:0:0], s.trades[excess:]...)
	}
	s.lastUpdateNs = timeutil.NowNano()
}

// SnapshotBook 返回买卖盘的拷贝
// 返回值可安全跨协程使用
func (s *MarketState) SnapshotBook() (bids, asks model.Book) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bids.Clone(), s.asks.Clone()
}

// SnapshotTrades 返回成交历史的拷贝
func (s *MarketState) SnapshotTrades() []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// LastTrade 返回最近一笔成交
// 返回: 成交记录与是否存在
func (s *MarketState) LastTrade() (model.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.trades) == 0 {
		return model.Trade{}, false
	}
	return s.trades[len(s.trades)-1], true
}

// UpdateBalance 更新可用与已出借余额
func (s *MarketState) UpdateBalance(available, lent decimal.Decimal) {
	s.mu.Lock()
	s.available = available
	s.lent = lent
	s.lastUpdateNs = timeutil.NowNano()
	s.mu.Unlock()
}

// AvailableBalance 返回可用余额
func (s *MarketState) AvailableBalance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// LentBalance 返回已出借余额
func (s *MarketState) LentBalance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lent
}

// TotalEquity 返回总权益（可用 + 已出借）
func (s *MarketState) TotalEquity() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available.Add(s.lent)
}

// AddOrder 将已确认订单加入挂单集合
// 同 ID 订单覆盖（交易所 ID 唯一，覆盖仅发生在重复确认时）
func (s *MarketState) AddOrder(o model.Order) {
	s.mu.Lock()
	s.pendingOrders[o.ID] = o
	s.lastUpdateNs = timeutil.NowNano()
	s.mu.Unlock()
}

// RemoveOrder 从挂单集合移除订单
// ID 不存在时为空操作
func (s *MarketState) RemoveOrder(id int64) {
	s.mu.Lock()
	delete(s.pendingOrders, id)
	s.lastUpdateNs = timeutil.NowNano()
	s.mu.Unlock()
}

// PendingOrders 返回挂单集合的拷贝
func (s *MarketState) PendingOrders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0, len(s.pendingOrders))
	for _, o := range s.pendingOrders {
		out = append(out, o)
	}
	return out
}

// PendingOrderCount 返回挂单数量
func (s *MarketState) PendingOrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingOrders)
}

// SetFundingRate 记录外部永续资金费率读数
func (s *MarketState) SetFundingRate(rate decimal.Decimal) {
	s.mu.Lock()
	s.fundingRate = rate
	s.mu.Unlock()
}

// FundingRate 返回最近的资金费率读数
func (s *MarketState) FundingRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fundingRate
}

// SetAggressive 设置激进模式标志
func (s *MarketState) SetAggressive(v bool) {
	s.mu.Lock()
	s.aggressive = v
	s.mu.Unlock()
}

// IsAggressive 返回激进模式标志
func (s *MarketState) IsAggressive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggressive
}

// SetConnected 设置行情连接状态
func (s *MarketState) SetConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// IsConnected 返回行情连接状态
func (s *MarketState) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastUpdateNano 返回最近一次状态更新时间（纳秒）
func (s *MarketState) LastUpdateNano() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateNs
}
