// Package bitfinex 实现 Bitfinex ws/2 消息解析。
// 协议分两层：JSON 对象是事件帧（info/subscribed/error），
// JSON 数组是数据帧 [chanId, payload]，payload 按订阅时记下的频道解释。
// 解析器维护 chanId -> 频道名 的绑定表；重连后网关会重新分配 chanId，
// 必须 Reset 后重新绑定，否则旧 ID 的帧会被路由到错误的频道。
package bitfinex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"funding-liquidity-engine/internal/core/model"
	"funding-liquidity-engine/internal/util/decparse"
)

// Parser Bitfinex 消息解析器
// 持有 chanId 绑定表，并发安全
type Parser struct {
	// mu 保护绑定表
	mu sync.RWMutex
	// channels chanId -> 频道名（book / trades）
	channels map[int64]string
}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{
		channels: make(map[int64]string),
	}
}

// Bind 记录 chanId 与频道的绑定
// 在收到 subscribed 事件后由客户端调用
// 参数 chanID: 网关分配的频道 ID
// 参数 channel: 频道名称
func (p *Parser) Bind(chanID int64, channel string) {
	p.mu.Lock()
	p.channels[chanID] = channel
	p.mu.Unlock()
}

// Reset 清空全部 chanId 绑定
// 重连后必须调用：新连接的 chanId 与旧连接无关
func (p *Parser) Reset() {
	p.mu.Lock()
	p.channels = make(map[int64]string)
	p.mu.Unlock()
}

// lookup 查找 chanId 对应的频道名
func (p *Parser) lookup(chanID int64) (string, bool) {
	p.mu.RLock()
	ch, ok := p.channels[chanID]
	p.mu.RUnlock()
	return ch, ok
}

// Parse 解析一条原始消息
// 参数 data: 原始消息字节
// 返回: 统一帧；格式非法时返回错误
func (p *Parser) Parse(data []byte) (*Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("空消息")
	}

	switch trimmed[0] {
	case '{':
		return p.parseEvent(trimmed)
	case '[':
		return p.parseData(trimmed)
	default:
		return nil, fmt.Errorf("无法识别的消息格式: %q", previewOf(trimmed))
	}
}

// parseEvent 解析事件帧（JSON 对象）
func (p *Parser) parseEvent(data []byte) (*Frame, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析事件帧失败: %w", err)
	}

	switch msg.Event {
	case "info":
		return &Frame{Kind: FrameInfo, Version: msg.Version}, nil
	case "subscribed":
		return &Frame{
			Kind:    FrameSubscribed,
			ChanID:  msg.ChanID,
			Channel: msg.Channel,
			Symbol:  msg.Symbol,
		}, nil
	case "error":
		return &Frame{Kind: FrameError, Channel: msg.Channel, Msg: msg.Msg}, nil
	default:
		// pong、conf 确认等事件对行情状态无影响
		return &Frame{Kind: FrameUnknown}, nil
	}
}

// parseData 解析数据帧 [chanId, payload]
// 数值一律以 json.Number 读入，经 decparse 转为定点数
func (p *Parser) parseData(data []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var arr []interface{}
	if err := dec.Decode(&arr); err != nil {
		return nil, fmt.Errorf("解析数据帧失败: %w", err)
	}
	if len(arr) < 2 {
		return nil, fmt.Errorf("数据帧长度不足: %d", len(arr))
	}

	chanNum, ok := arr[0].(json.Number)
	if !ok {
		return nil, fmt.Errorf("chanId 不是数值: %T", arr[0])
	}
	chanID, err := decparse.Int(chanNum)
	if err != nil {
		return nil, fmt.Errorf("解析 chanId 失败: %w", err)
	}

	// 心跳对所有频道同构，不需要频道绑定
	if s, ok := arr[1].(string); ok && s == "hb" {
		return &Frame{Kind: FrameHeartbeat, ChanID: chanID}, nil
	}

	channel, bound := p.lookup(chanID)
	if !bound {
		return &Frame{Kind: FrameUnknown, ChanID: chanID}, nil
	}

	switch channel {
	case ChannelBook:
		return p.parseBookPayload(chanID, arr[1])
	case ChannelTrades:
		return p.parseTradesPayload(chanID, arr)
	default:
		return &Frame{Kind: FrameUnknown, ChanID: chanID}, nil
	}
}

// parseBookPayload 解析 book 频道载荷
// 快照为条目数组的数组，增量为单条条目数组
func (p *Parser) parseBookPayload(chanID int64, payload interface{}) (*Frame, error) {
	items, ok := payload.([]interface{})
	if !ok {
		return nil, fmt.Errorf("book 载荷不是数组: %T", payload)
	}
	if len(items) == 0 {
		return &Frame{Kind: FrameBookSnapshot, ChanID: chanID, Channel: ChannelBook}, nil
	}

	if _, nested := items[0].([]interface{}); nested {
		entries := make([]model.BookEntry, 0, len(items))
		for _, it := range items {
			entry, err := parseBookEntry(it)
			if err != nil {
				return nil, fmt.Errorf("解析快照条目失败: %w", err)
			}
			entries = append(entries, entry)
		}
		return &Frame{
			Kind:    FrameBookSnapshot,
			ChanID:  chanID,
			Channel: ChannelBook,
			Entries: entries,
		}, nil
	}

	entry, err := parseBookEntry(payload)
	if err != nil {
		return nil, fmt.Errorf("解析增量条目失败: %w", err)
	}
	return &Frame{
		Kind:    FrameBookUpdate,
		ChanID:  chanID,
		Channel: ChannelBook,
		Entry:   entry,
	}, nil
}

// parseBookEntry 解析单条订单簿条目 [RATE, PERIOD, COUNT, AMOUNT]
func parseBookEntry(v interface{}) (model.BookEntry, error) {
	items, ok := v.([]interface{})
	if !ok {
		return model.BookEntry{}, fmt.Errorf("条目不是数组: %T", v)
	}
	if len(items) < 4 {
		return model.BookEntry{}, fmt.Errorf("条目字段不足: %d", len(items))
	}

	nums := make([]json.Number, 4)
	for i := 0; i < 4; i++ {
		n, ok := items[i].(json.Number)
		if !ok {
			return model.BookEntry{}, fmt.Errorf("条目字段 %d 不是数值: %T", i, items[i])
		}
		nums[i] = n
	}

	rate, err := decparse.Number(nums[0])
	if err != nil {
		return model.BookEntry{}, err
	}
	period, err := decparse.Int(nums[1])
	if err != nil {
		return model.BookEntry{}, err
	}
	count, err := decparse.Int(nums[2])
	if err != nil {
		return model.BookEntry{}, err
	}
	amount, err := decparse.Number(nums[3])
	if err != nil {
		return model.BookEntry{}, err
	}

	return model.BookEntry{
		Rate:   rate,
		Period: period,
		Count:  count,
		Amount: amount,
	}, nil
}

// parseTradesPayload 解析 trades 频道载荷
// 快照: [chanId, [[trade], ...]]；实时: [chanId, "te"|"tu", [trade]]
func (p *Parser) parseTradesPayload(chanID int64, arr []interface{}) (*Frame, error) {
	if s, ok := arr[1].(string); ok {
		if s != "te" && s != "tu" {
			return &Frame{Kind: FrameUnknown, ChanID: chanID}, nil
		}
		if len(arr) < 3 {
			return nil, fmt.Errorf("成交事件缺少数据段")
		}
		trade, err := parseTrade(arr[2])
		if err != nil {
			return nil, fmt.Errorf("解析成交事件失败: %w", err)
		}
		return &Frame{
			Kind:    FrameTradeEvent,
			ChanID:  chanID,
			Channel: ChannelTrades,
			Trades:  []model.Trade{trade},
		}, nil
	}

	items, ok := arr[1].([]interface{})
	if !ok {
		return nil, fmt.Errorf("trades 载荷不是数组: %T", arr[1])
	}
	trades := make([]model.Trade, 0, len(items))
	for _, it := range items {
		trade, err := parseTrade(it)
		if err != nil {
			return nil, fmt.Errorf("解析成交快照条目失败: %w", err)
		}
		trades = append(trades, trade)
	}
	return &Frame{
		Kind:    FrameTradeSnapshot,
		ChanID:  chanID,
		Channel: ChannelTrades,
		Trades:  trades,
	}, nil
}

// parseTrade 解析单笔资金成交 [ID, MTS, AMOUNT, RATE, PERIOD]
func parseTrade(v interface{}) (model.Trade, error) {
	items, ok := v.([]interface{})
	if !ok {
		return model.Trade{}, fmt.Errorf("成交不是数组: %T", v)
	}
	if len(items) < 4 {
		return model.Trade{}, fmt.Errorf("成交字段不足: %d", len(items))
	}

	mtsNum, ok := items[1].(json.Number)
	if !ok {
		return model.Trade{}, fmt.Errorf("MTS 不是数值: %T", items[1])
	}
	mts, err := decparse.Int(mtsNum)
	if err != nil {
		return model.Trade{}, err
	}

	amountNum, ok := items[2].(json.Number)
	if !ok {
		return model.Trade{}, fmt.Errorf("AMOUNT 不是数值: %T", items[2])
	}
	amount, err := decparse.Number(amountNum)
	if err != nil {
		return model.Trade{}, err
	}

	rateNum, ok := items[3].(json.Number)
	if !ok {
		return model.Trade{}, fmt.Errorf("RATE 不是数值: %T", items[3])
	}
	rate, err := decparse.Number(rateNum)
	if err != nil {
		return model.Trade{}, err
	}

	return model.Trade{
		Rate:   rate,
		Amount: amount,
		MTS:    mts,
	}, nil
}

// previewOf 截取消息前缀用于错误信息
func previewOf(data []byte) string {
	if len(data) > 64 {
		data = data[:64]
	}
	return string(data)
}
