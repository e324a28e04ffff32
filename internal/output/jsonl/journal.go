// Package jsonl 实现分配周期决策与连接指标的异步 JSONL 落盘。
// 写入方只负责投递，JSON 编码与文件 I/O 在后台 goroutine 完成，
// 分配周期不被磁盘抖动阻塞。
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// LayerRecord 单层执行记录
type LayerRecord struct {
	// Kind 层类型: BASE, ALPHA, SPIKE
	Kind string `json:"kind"`
	// Amount 分配金额
	Amount string `json:"amount"`
	// Rate 目标利率；Base 层为提交时解析出的最优买价
	Rate string `json:"rate"`
	// TrackBestBid 是否追踪最优买价
	TrackBestBid bool `json:"track_best_bid"`
	// OrderID 交易所订单 ID；演练模式或提交失败时为 0
	OrderID int64 `json:"order_id"`
	// Submitted 是否成功提交
	Submitted bool `json:"submitted"`
}

// RebalanceRecord 撤换单决策记录
type RebalanceRecord struct {
	// OrderID 被评估的挂单 ID
	OrderID int64 `json:"order_id"`
	// Eta 效率分数
	Eta float64 `json:"eta"`
	// Triggered 是否触发撤换单
	Triggered bool `json:"triggered"`
	// NewOrderID 重挂后的订单 ID；未触发或失败时为 0
	NewOrderID int64 `json:"new_order_id"`
}

// CycleRecord 单个分配周期的决策记录
type CycleRecord struct {
	// PlanID 计划唯一标识
	PlanID string `json:"plan_id"`
	// TSMs 周期时间戳（毫秒）
	TSMs int64 `json:"ts_ms"`
	// VWAR 成交量加权平均利率
	VWAR float64 `json:"vwar"`
	// Volatility 波动率估计
	Volatility float64 `json:"volatility"`
	// Bias 合成偏置
	Bias float64 `json:"bias"`
	// ZScore 最近吃单量 Z 分数
	ZScore float64 `json:"z_score"`
	// DepthSkew 盘口深度偏斜 [-1, 1]
	DepthSkew float64 `json:"depth_skew"`
	// OFI 订单流不平衡
	OFI float64 `json:"ofi"`
	// FundingRate 外部资金费率读数
	FundingRate string `json:"funding_rate"`
	// Aggressive 激进模式标志
	Aggressive bool `json:"aggressive"`
	// Capital 本周期可用资金
	Capital string `json:"capital"`
	// DryRun 演练模式
	DryRun bool `json:"dry_run"`
	// Layers 各层执行记录
	Layers []LayerRecord `json:"layers"`
	// Rebalances 撤换单决策记录
	Rebalances []RebalanceRecord `json:"rebalances,omitempty"`
}

// MetricsRecord 行情连接指标记录
type MetricsRecord struct {
	// TSMs 记录时间戳（毫秒）
	TSMs int64 `json:"ts_ms"`
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// DroppedFrameCount 丢弃帧数
	DroppedFrameCount int64 `json:"dropped_frame_count"`
	// LastFrameAgeMs 最后一帧距今时间（毫秒）
	LastFrameAgeMs int64 `json:"last_frame_age_ms"`
}

type opType int

const (
	opWrite opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	val  any
	done chan error
}

// Journal 异步 JSONL 决策日志
type Journal struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan op

	closeOnce sync.Once
	closeErr  error
	closed    int32

	sendMu sync.Mutex

	wg sync.WaitGroup
}

// NewJournal 创建决策日志
// 参数 path: 输出文件路径（目录不存在时自动创建）
// 参数 bufferSize: 投递缓冲区大小
func NewJournal(path string, bufferSize int) (*Journal, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	j := &Journal{
		path: path,
		ch:   make(chan op, bufferSize),
	}

	j.wg.Add(1)
	go j.loop(f)

	return j, nil
}

// WriteCycle 记录一个分配周期
func (j *Journal) WriteCycle(rec CycleRecord) error {
	return j.submit(rec)
}

// WriteMetrics 记录一次连接指标采样
func (j *Journal) WriteMetrics(rec MetricsRecord) error {
	return j.submit(rec)
}

// submit 投递一条记录
// 缓冲区满时阻塞；关闭后返回错误
func (j *Journal) submit(v any) error {
	if j == nil {
		return fmt.Errorf("journal 为空")
	}
	if atomic.LoadInt32(&j.closed) == 1 {
		return fmt.Errorf("journal 已关闭")
	}
	j.sendMu.Lock()
	defer j.sendMu.Unlock()
	if atomic.LoadInt32(&j.closed) == 1 {
		return fmt.Errorf("journal 已关闭")
	}
	j.ch <- op{typ: opWrite, val: v}
	return nil
}

// Flush 强制落盘
func (j *Journal) Flush() error {
	if j == nil {
		return nil
	}
	if atomic.LoadInt32(&j.closed) == 1 {
		return nil
	}
	j.sendMu.Lock()
	defer j.sendMu.Unlock()
	if atomic.LoadInt32(&j.closed) == 1 {
		return nil
	}
	done := make(chan error, 1)
	j.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close 关闭日志（会先落盘）
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.closeOnce.Do(func() {
		atomic.StoreInt32(&j.closed, 1)
		j.sendMu.Lock()
		defer j.sendMu.Unlock()
		done := make(chan error, 1)
		j.ch <- op{typ: opClose, done: done}
		j.closeErr = <-done
		close(j.ch)
	})
	j.wg.Wait()
	return j.closeErr
}

func (j *Journal) loop(f *os.File) {
	defer j.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	reply := func(err error, done chan error) {
		if done != nil {
			done <- err
		}
	}

	for req := range j.ch {
		switch req.typ {
		case opWrite:
			b, err := json.Marshal(req.val)
			if err != nil {
				continue
			}
			if _, err := bw.Write(b); err != nil {
				continue
			}
			if err := bw.WriteByte('\n'); err != nil {
				continue
			}
		case opFlush:
			reply(bw.Flush(), req.done)
		case opClose:
			reply(bw.Flush(), req.done)
			return
		}
	}
}
