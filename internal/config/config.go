// Package config 负责加载和验证 YAML 配置文件。
// 提供引擎所需的全部配置项：交易所连接、限流、策略权重、信号阈值、再平衡与报告设置。
// API 密钥与 Webhook 地址属于机密，不进 YAML，由环境变量提供（见 LoadSecrets）。
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 引擎配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Exchange 交易所连接配置
	Exchange ExchangeConfig `yaml:"exchange"`
	// Limiter 认证 REST 调用限流配置
	Limiter LimiterConfig `yaml:"limiter"`
	// Strategy 资金分层策略配置
	Strategy StrategyConfig `yaml:"strategy"`
	// Signals 信号计算配置
	Signals SignalConfig `yaml:"signals"`
	// Rebalance 再平衡决策配置
	Rebalance RebalanceConfig `yaml:"rebalance"`
	// Report 状态报告配置
	Report ReportConfig `yaml:"report"`
	// Output 决策日志输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// LogFile 日志文件路径；为空时仅输出到 stderr
	LogFile string `yaml:"log_file"`
	// LogMaxSizeMB 单个日志文件上限（MB），超过后轮转
	LogMaxSizeMB int `yaml:"log_max_size_mb"`
	// LogMaxBackups 保留的轮转文件数
	LogMaxBackups int `yaml:"log_max_backups"`
}

// ExchangeConfig 交易所连接配置
type ExchangeConfig struct {
	// WSURL 公共行情 WebSocket 地址
	WSURL string `yaml:"ws_url"`
	// RestURL 认证 REST 基地址（v2）
	RestURL string `yaml:"rest_url"`
	// PublicRestURL 公共 REST 基地址（外部资金费率轮询使用）
	PublicRestURL string `yaml:"public_rest_url"`
	// Symbol 资金币种，如 fUSD
	Symbol string `yaml:"symbol"`
	// BookPrecision 订单簿精度参数，如 P0
	BookPrecision string `yaml:"book_precision"`
	// BookFrequency 订单簿推送频率参数，如 F0
	BookFrequency string `yaml:"book_frequency"`
	// BookLength 订单簿档位数参数，如 "100"
	BookLength string `yaml:"book_length"`
	// StaleTimeoutSec 静默超时（秒）：超过该时长未收到任何帧即强制断开
	StaleTimeoutSec int `yaml:"stale_timeout_sec"`
	// WatchdogIntervalSec 静默检测周期（秒）
	WatchdogIntervalSec int `yaml:"watchdog_interval_sec"`
	// ReconnectDelaySec 断线后固定重连延迟（秒），不做指数增长
	ReconnectDelaySec int `yaml:"reconnect_delay_sec"`
	// RequestTimeoutMs REST 请求超时（毫秒），超时视为失败，不重试
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// LimiterConfig 认证 REST 调用限流配置
type LimiterConfig struct {
	// Tokens 窗口内允许的调用次数（桶容量）
	Tokens int `yaml:"tokens"`
	// WindowSec 补充窗口（秒）
	WindowSec int `yaml:"window_sec"`
}

// LayerWeights 各风险层的资金权重，必须恰好加和为 1.0
type LayerWeights struct {
	// Base 基础层权重（挂最优买价）
	Base float64 `yaml:"base"`
	// Alpha 阿尔法层权重（mu + 0.5σ）
	Alpha float64 `yaml:"alpha"`
	// Spike 尖峰层权重（mu + 3σ）
	Spike float64 `yaml:"spike"`
}

// Sum 返回权重之和
func (w LayerWeights) Sum() float64 {
	return w.Base + w.Alpha + w.Spike
}

// StrategyConfig 资金分层策略配置
type StrategyConfig struct {
	// Weights 各层资金权重
	Weights LayerWeights `yaml:"weights"`
	// MinOrderSize 最小挂单金额（USD）；低于该值的层被静默丢弃
	MinOrderSize float64 `yaml:"min_order_size"`
	// Period 资金借贷期限（天）
	Period int `yaml:"period"`
	// DryRun 演练模式：只生成并记录计划，不真正提交订单
	DryRun bool `yaml:"dry_run"`
}

// SignalConfig 信号计算配置
type SignalConfig struct {
	// FundingSymbol 外部永续资金费率的合约标识，如 tBTCF0:USTF0
	FundingSymbol string `yaml:"funding_symbol"`
	// FundingIntervalSec 资金费率轮询周期（秒）
	FundingIntervalSec int `yaml:"funding_interval_sec"`
	// FundingFieldIndex 资金费率在 status/deriv 行中的字段下标
	// 上游 schema 未最终确认，上线前需对照实盘响应钉死（见 external 包注释）
	FundingFieldIndex int `yaml:"funding_field_index"`
	// FundingRateThreshold 资金费率偏置阈值；超过后分层均值上浮 5%
	FundingRateThreshold float64 `yaml:"funding_rate_threshold"`
	// ZScoreThreshold 吃单量 Z 分数阈值；超过后进入激进模式，均值再上浮 10%
	ZScoreThreshold float64 `yaml:"z_score_threshold"`
	// VolatilityWindow 波动率计算窗口（最近 N 笔成交）
	VolatilityWindow int `yaml:"volatility_window"`
	// SpikeWindow 尖峰预测器滑动窗口容量（样本数）
	SpikeWindow int `yaml:"spike_window"`
	// DepthLevels 深度偏斜计算的档位数
	DepthLevels int `yaml:"depth_levels"`
	// OFIDepthLevels 订单流不平衡计算的档位数
	OFIDepthLevels int `yaml:"ofi_depth_levels"`
}

// RebalanceConfig 再平衡决策配置
type RebalanceConfig struct {
	// IntervalSec 分配/再平衡周期（秒）
	IntervalSec int `yaml:"interval_sec"`
	// EfficiencyThreshold 效率阈值：eta 超过该值才执行撤换单
	EfficiencyThreshold float64 `yaml:"efficiency_threshold"`
	// ExecTimeSec 撤换单执行耗时估计（秒），进入 eta 分母
	ExecTimeSec int `yaml:"exec_time_sec"`
}

// ReportConfig 状态报告配置
type ReportConfig struct {
	// Enabled 是否发送每日状态报告
	Enabled bool `yaml:"enabled"`
	// Hour 本地时间发送小时（0-23）
	Hour int `yaml:"hour"`
}

// OutputConfig 决策日志输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// JournalEnabled 是否输出周期决策 JSONL
	JournalEnabled bool `yaml:"journal_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Secrets 机密配置，来自环境变量而非 YAML
type Secrets struct {
	// APIKey 交易所 API Key（BITFINEX_API_KEY）
	APIKey string
	// APISecret 交易所 API Secret（BITFINEX_API_SECRET）
	APISecret string
	// WebhookURL Discord Webhook 地址（DISCORD_WEBHOOK_URL）；为空时跳过通知
	WebhookURL string
}

// LoadSecrets 从环境变量读取机密配置
// 缺失项不视为错误：未配置的能力在运行时被跳过，而非导致进程退出。
func LoadSecrets() Secrets {
	return Secrets{
		APIKey:     os.Getenv("BITFINEX_API_KEY"),
		APISecret:  os.Getenv("BITFINEX_API_SECRET"),
		WebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
	}
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "funding-liquidity-engine"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogMaxSizeMB == 0 {
		c.App.LogMaxSizeMB = 100
	}
	if c.App.LogMaxBackups == 0 {
		c.App.LogMaxBackups = 5
	}

	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = "wss://api-pub.bitfinex.com/ws/2"
	}
	if c.Exchange.RestURL == "" {
		c.Exchange.RestURL = "https://api.bitfinex.com/v2"
	}
	if c.Exchange.PublicRestURL == "" {
		c.Exchange.PublicRestURL = "https://api-pub.bitfinex.com/v2"
	}
	if c.Exchange.Symbol == "" {
		c.Exchange.Symbol = "fUSD"
	}
	if c.Exchange.BookPrecision == "" {
		c.Exchange.BookPrecision = "P0"
	}
	if c.Exchange.BookFrequency == "" {
		c.Exchange.BookFrequency = "F0"
	}
	if c.Exchange.BookLength == "" {
		c.Exchange.BookLength = "100"
	}
	if c.Exchange.StaleTimeoutSec == 0 {
		c.Exchange.StaleTimeoutSec = 30
	}
	if c.Exchange.WatchdogIntervalSec == 0 {
		c.Exchange.WatchdogIntervalSec = 5
	}
	if c.Exchange.ReconnectDelaySec == 0 {
		c.Exchange.ReconnectDelaySec = 5
	}
	if c.Exchange.RequestTimeoutMs == 0 {
		c.Exchange.RequestTimeoutMs = 10000 // 10 秒
	}

	if c.Limiter.Tokens == 0 {
		c.Limiter.Tokens = 30
	}
	if c.Limiter.WindowSec == 0 {
		c.Limiter.WindowSec = 60
	}

	if c.Strategy.Weights == (LayerWeights{}) {
		c.Strategy.Weights = LayerWeights{Base: 0.40, Alpha: 0.30, Spike: 0.30}
	}
	if c.Strategy.MinOrderSize == 0 {
		c.Strategy.MinOrderSize = 150.0
	}
	if c.Strategy.Period == 0 {
		c.Strategy.Period = 2
	}

	if c.Signals.FundingSymbol == "" {
		c.Signals.FundingSymbol = "tBTCF0:USTF0"
	}
	if c.Signals.FundingIntervalSec == 0 {
		c.Signals.FundingIntervalSec = 60
	}
	if c.Signals.FundingFieldIndex == 0 {
		c.Signals.FundingFieldIndex = 12
	}
	if c.Signals.FundingRateThreshold == 0 {
		c.Signals.FundingRateThreshold = 0.0005
	}
	if c.Signals.ZScoreThreshold == 0 {
		c.Signals.ZScoreThreshold = 2.0
	}
	if c.Signals.VolatilityWindow == 0 {
		c.Signals.VolatilityWindow = 50
	}
	if c.Signals.SpikeWindow == 0 {
		c.Signals.SpikeWindow = 300
	}
	if c.Signals.DepthLevels == 0 {
		c.Signals.DepthLevels = 10
	}
	if c.Signals.OFIDepthLevels == 0 {
		c.Signals.OFIDepthLevels = 5
	}

	if c.Rebalance.IntervalSec == 0 {
		c.Rebalance.IntervalSec = 10
	}
	if c.Rebalance.EfficiencyThreshold == 0 {
		c.Rebalance.EfficiencyThreshold = 1.25
	}
	if c.Rebalance.ExecTimeSec == 0 {
		c.Rebalance.ExecTimeSec = 10
	}

	if c.Report.Hour == 0 {
		c.Report.Hour = 13
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查必填项、数值范围与分层权重不变量
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Exchange.WSURL == "" {
		errs = append(errs, "exchange.ws_url: WebSocket 地址不能为空")
	}
	if c.Exchange.RestURL == "" {
		errs = append(errs, "exchange.rest_url: REST 地址不能为空")
	}
	if c.Exchange.Symbol == "" {
		errs = append(errs, "exchange.symbol: 资金币种不能为空")
	}
	if c.Exchange.StaleTimeoutSec <= 0 {
		errs = append(errs, "exchange.stale_timeout_sec: 静默超时必须为正数")
	}
	if c.Exchange.ReconnectDelaySec <= 0 {
		errs = append(errs, "exchange.reconnect_delay_sec: 重连延迟必须为正数")
	}

	if c.Limiter.Tokens <= 0 {
		errs = append(errs, "limiter.tokens: 桶容量必须为正数")
	}
	if c.Limiter.WindowSec <= 0 {
		errs = append(errs, "limiter.window_sec: 补充窗口必须为正数")
	}

	// 分层权重不变量：恰好加和为 1.0
	if w := c.Strategy.Weights; math.Abs(w.Sum()-1.0) > 1e-9 {
		errs = append(errs, fmt.Sprintf("strategy.weights: 权重之和必须为 1.0，当前为 %v", w.Sum()))
	}
	if c.Strategy.Weights.Base < 0 || c.Strategy.Weights.Alpha < 0 || c.Strategy.Weights.Spike < 0 {
		errs = append(errs, "strategy.weights: 权重不能为负数")
	}
	if c.Strategy.MinOrderSize <= 0 {
		errs = append(errs, "strategy.min_order_size: 最小挂单金额必须为正数")
	}
	if c.Strategy.Period <= 0 {
		errs = append(errs, "strategy.period: 借贷期限必须为正数")
	}

	if c.Signals.VolatilityWindow < 2 {
		errs = append(errs, "signals.volatility_window: 波动率窗口至少为 2")
	}
	if c.Signals.SpikeWindow < 10 {
		errs = append(errs, "signals.spike_window: 尖峰窗口至少为 10")
	}
	if c.Signals.FundingFieldIndex < 0 {
		errs = append(errs, "signals.funding_field_index: 字段下标不能为负数")
	}

	if c.Rebalance.IntervalSec <= 0 {
		errs = append(errs, "rebalance.interval_sec: 周期必须为正数")
	}
	if c.Rebalance.EfficiencyThreshold <= 0 {
		errs = append(errs, "rebalance.efficiency_threshold: 效率阈值必须为正数")
	}

	if c.Report.Hour < 0 || c.Report.Hour > 23 {
		errs = append(errs, "report.hour: 发送小时必须在 0-23 之间")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
