// Package bitfinex 定义 Bitfinex 资金市场消息类型。
package bitfinex

import "funding-liquidity-engine/internal/core/model"

// SubscribeRequest Bitfinex 订阅请求
// 用于订阅 book / trades 频道
type SubscribeRequest struct {
	// Event 事件类型: subscribe
	Event string `json:"event"`
	// Channel 频道名称: book, trades
	Channel string `json:"channel"`
	// Symbol 资金币种: fUSD
	Symbol string `json:"symbol"`
	// Precision 订单簿精度: P0（仅 book 频道）
	Precision string `json:"prec,omitempty"`
	// Frequency 推送频率: F0（仅 book 频道）
	Frequency string `json:"freq,omitempty"`
	// Length 档位数: "100"（仅 book 频道）
	Length string `json:"len,omitempty"`
}

// EventMessage Bitfinex 事件消息（JSON 对象帧）
// 数据帧是 JSON 数组，事件帧（info/subscribed/error）是 JSON 对象
type EventMessage struct {
	// Event 事件类型: info, subscribed, error
	Event string `json:"event"`
	// Channel 频道名称: book, trades
	Channel string `json:"channel,omitempty"`
	// ChanID 频道 ID，后续数据帧以此路由
	ChanID int64 `json:"chanId,omitempty"`
	// Symbol 资金币种
	Symbol string `json:"symbol,omitempty"`
	// Version 协议版本（info 事件）
	Version int64 `json:"version,omitempty"`
	// Code 错误码（error 事件）
	Code int64 `json:"code,omitempty"`
	// Msg 错误消息（error 事件）
	Msg string `json:"msg,omitempty"`
}

// FrameKind 数据帧类型
type FrameKind int

const (
	// FrameUnknown 无法路由的帧（chanId 未绑定或载荷不识别）
	FrameUnknown FrameKind = iota
	// FrameInfo 连接信息事件
	FrameInfo
	// FrameSubscribed 订阅确认事件，携带 chanId 绑定
	FrameSubscribed
	// FrameError 网关错误事件
	FrameError
	// FrameHeartbeat 频道心跳 [chanId, "hb"]
	FrameHeartbeat
	// FrameBookSnapshot 订单簿快照（条目数组的数组）
	FrameBookSnapshot
	// FrameBookUpdate 订单簿增量（单条条目）
	FrameBookUpdate
	// FrameTradeSnapshot 成交历史快照
	FrameTradeSnapshot
	// FrameTradeEvent 单笔成交事件（te/tu）
	FrameTradeEvent
)

// ChannelBook book 频道名
const ChannelBook = "book"

// ChannelTrades trades 频道名
const ChannelTrades = "trades"

// Frame 解析后的统一帧
// 只有与 Kind 对应的字段有效
type Frame struct {
	// Kind 帧类型
	Kind FrameKind
	// ChanID 频道 ID
	ChanID int64
	// Channel 频道名称（事件帧与已绑定的数据帧）
	Channel string
	// Symbol 资金币种（subscribed 事件）
	Symbol string
	// Version 协议版本（info 事件）
	Version int64
	// Msg 错误消息（error 事件）
	Msg string
	// Entries 订单簿快照条目
	Entries []model.BookEntry
	// Entry 订单簿增量条目
	Entry model.BookEntry
	// Trades 成交列表（快照或单笔）
	Trades []model.Trade
}

// ConnectionMetrics 连接质量指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64
	// DroppedFrameCount 丢弃的帧数（chanId 未绑定等）
	DroppedFrameCount int64
	// LastFrameAgeMs 最后一帧距今时间（毫秒）
	LastFrameAgeMs int64
}
