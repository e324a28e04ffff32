// Package bitfinex 实现 Bitfinex 资金市场的 WebSocket 客户端。
// 连接地址: wss://api-pub.bitfinex.com/ws/2
// 订阅频道: book（P0/F0/100）与 trades
// 断线恢复: 固定延迟重连，不做指数退避；重连即重订阅，盘口由快照整体重建
// 静默检测: 看门狗周期检查最后一帧时间，超过静默阈值强制断开触发重连
package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/core/state"
	"funding-liquidity-engine/internal/util/timeutil"
)

// Client Bitfinex WebSocket 客户端
// 解析出的帧直接应用到 MarketState，不经过中间事件通道
type Client struct {
	// cfg 交易所连接配置
	cfg *config.ExchangeConfig
	// logger 日志记录器
	logger *zap.Logger
	// parser 消息解析器
	parser *Parser
	// state 市场状态（帧的最终去处）
	state *state.MarketState
	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁（gorilla/websocket 不允许并发写）
	connMu sync.Mutex
	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex
	// lastFrameNs 最后一帧时间（纳秒），心跳也算
	lastFrameNs int64
	// closed 是否已关闭
	closed int32

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs int64
}

// NewClient 创建 Bitfinex WebSocket 客户端
// 参数 cfg: 交易所连接配置
// 参数 st: 市场状态
// 参数 logger: 日志记录器
func NewClient(cfg *config.ExchangeConfig, st *state.MarketState, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.Named("bitfinex-ws"),
		parser: NewParser(),
		state:  st,
	}
}

// Connect 建立 WebSocket 连接并清空旧的频道绑定
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "funding-liquidity-engine/1.0")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		return fmt.Errorf("连接 Bitfinex WebSocket 失败: %w", err)
	}

	// 新连接的 chanId 与旧连接无关
	c.parser.Reset()
	c.conn = conn
	atomic.StoreInt64(&c.lastFrameNs, timeutil.NowNano())
	c.state.SetConnected(true)
	c.logger.Info("Bitfinex WebSocket 连接成功", zap.String("url", c.cfg.WSURL))

	return nil
}

// Subscribe 订阅 book 与 trades 频道
func (c *Client) Subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("WebSocket 未连接")
	}

	reqs := []SubscribeRequest{
		{
			Event:     "subscribe",
			Channel:   ChannelBook,
			Symbol:    c.cfg.Symbol,
			Precision: c.cfg.BookPrecision,
			Frequency: c.cfg.BookFrequency,
			Length:    c.cfg.BookLength,
		},
		{
			Event:   "subscribe",
			Channel: ChannelTrades,
			Symbol:  c.cfg.Symbol,
		},
	}

	for _, req := range reqs {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("序列化订阅请求失败: %w", err)
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("发送订阅请求失败: %w", err)
		}
	}

	c.logger.Info("Bitfinex 订阅请求已发送",
		zap.String("symbol", c.cfg.Symbol),
		zap.Int("channels", len(reqs)))
	return nil
}

// Run 启动客户端主循环
// 包含读取循环与静默看门狗，阻塞直到 ctx 取消
func (c *Client) Run(ctx context.Context) {
	go c.watchdogLoop(ctx)
	c.readLoop(ctx)
}

// readLoop 读取循环
// 连接断开时按固定延迟重连并重订阅
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 1 || ctx.Err() != nil {
				return
			}
			c.logger.Warn("读取 Bitfinex 消息失败", zap.Error(err))
			c.incrementReconnectCount()
			c.reconnect(ctx)
			continue
		}

		atomic.StoreInt64(&c.lastFrameNs, timeutil.NowNano())
		c.handleMessage(data)
	}
}

// handleMessage 解析并应用一条原始消息
// 网络无关，便于测试
func (c *Client) handleMessage(data []byte) {
	frame, err := c.parser.Parse(data)
	if err != nil {
		c.incrementParseErrorCount()
		c.maybeLogParseError(err, data)
		return
	}

	switch frame.Kind {
	case FrameInfo:
		c.logger.Info("Bitfinex 平台信息", zap.Int64("version", frame.Version))

	case FrameSubscribed:
		c.parser.Bind(frame.ChanID, frame.Channel)
		c.logger.Info("Bitfinex 频道已订阅",
			zap.String("channel", frame.Channel),
			zap.Int64("chanId", frame.ChanID),
			zap.String("symbol", frame.Symbol))

	case FrameError:
		c.logger.Error("Bitfinex 网关错误",
			zap.String("channel", frame.Channel),
			zap.String("msg", frame.Msg))

	case FrameHeartbeat:
		// 已刷新 lastFrameNs，心跳不携带状态

	case FrameBookSnapshot:
		c.state.ReplaceBook(frame.Entries)

	case FrameBookUpdate:
		c.state.ApplyBookUpdate(frame.Entry)

	case FrameTradeSnapshot, FrameTradeEvent:
		c.state.AppendTrades(frame.Trades)

	default:
		c.incrementDroppedFrameCount()
	}
}

// watchdogLoop 静默看门狗
// 周期检查最后一帧时间，超过静默阈值强制断开（读取循环随即重连）
func (c *Client) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(c.cfg.WatchdogIntervalSec) * time.Second)
	defer ticker.Stop()

	staleNs := int64(c.cfg.StaleTimeoutSec) * int64(time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			c.forceCloseIfStale(staleNs)
		}
	}
}

// forceCloseIfStale 最后一帧早于静默阈值时强制关闭连接
// 只负责断开：重连与重连计数统一由读取循环在读取失败处记录一次
// 参数 staleNs: 静默阈值（纳秒）
// 返回: 是否触发了强制断开
func (c *Client) forceCloseIfStale(staleNs int64) bool {
	c.connMu.Lock()
	connected := c.conn != nil
	c.connMu.Unlock()
	if !connected {
		return false
	}

	last := atomic.LoadInt64(&c.lastFrameNs)
	if last > 0 && timeutil.NowNano()-last > staleNs {
		c.logger.Warn("Bitfinex 行情静默超时，强制断开",
			zap.Int("staleTimeoutSec", c.cfg.StaleTimeoutSec))
		c.closeConn()
		return true
	}
	return false
}

// reconnect 按固定延迟重连并重订阅
// 失败留给下一轮读取循环重试，不累积退避
func (c *Client) reconnect(ctx context.Context) {
	c.closeConn()
	c.state.SetConnected(false)

	delay := time.Duration(c.cfg.ReconnectDelaySec) * time.Second
	c.logger.Info("Bitfinex 准备重连", zap.Duration("delay", delay))

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Error("Bitfinex 重连失败", zap.Error(err))
		return
	}

	if err := c.Subscribe(); err != nil {
		c.logger.Error("Bitfinex 重新订阅失败", zap.Error(err))
	}
}

// closeConn 关闭连接
func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	c.state.SetConnected(false)
	c.logger.Info("Bitfinex 客户端已关闭")
	return nil
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	m := c.metrics
	c.metricsMu.RUnlock()

	if last := atomic.LoadInt64(&c.lastFrameNs); last > 0 {
		m.LastFrameAgeMs = timeutil.SinceNano(last).Milliseconds()
	}
	return m
}

// incrementReconnectCount 增加重连计数
func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

// incrementParseErrorCount 增加解析错误计数
func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

// incrementDroppedFrameCount 增加丢帧计数
func (c *Client) incrementDroppedFrameCount() {
	c.metricsMu.Lock()
	c.metrics.DroppedFrameCount++
	c.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解析错误原始消息，避免刷盘
// 采样策略：每 100 次错误记录 1 条，且同一类日志至少间隔 1 分钟。
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&c.parseErrSampleCount, 1)
	if count%100 != 0 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&c.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&c.lastParseErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("解析 Bitfinex 消息失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
