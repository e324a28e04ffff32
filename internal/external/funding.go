// Package external 轮询外部永续合约的资金费率，作为分层均值的偏置信号。
// 数据来自公共 REST 接口 status/deriv，行是未定版的不透明数组：
// 字段下标不写死在代码里，而是放进配置（signals.funding_field_index），
// 上线前对照实盘响应钉死下标即可，不需要改代码。
// 拉取失败时保留上一次读数，偏置信号宁旧勿缺。
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/util/decparse"
)

// FundingPoller 外部资金费率轮询器
type FundingPoller struct {
	// http 公共 REST 客户端
	http *resty.Client
	// symbol 永续合约标识，如 tBTCF0:USTF0
	symbol string
	// fieldIndex 资金费率在响应行中的下标
	fieldIndex int
	// logger 日志记录器
	logger *zap.Logger
}

// NewFundingPoller 创建资金费率轮询器
// 参数 cfg: 交易所连接配置（提供公共 REST 基地址）
// 参数 sig: 信号配置（提供合约标识与字段下标）
// 参数 logger: 日志记录器
func NewFundingPoller(cfg *config.ExchangeConfig, sig *config.SignalConfig, logger *zap.Logger) *FundingPoller {
	httpClient := resty.New().
		SetBaseURL(cfg.PublicRestURL).
		SetTimeout(time.Duration(cfg.RequestTimeoutMs) * time.Millisecond)

	return &FundingPoller{
		http:       httpClient,
		symbol:     sig.FundingSymbol,
		fieldIndex: sig.FundingFieldIndex,
		logger:     logger.Named("funding-poller"),
	}
}

// FetchFundingRate 拉取一次资金费率
// 响应形如 [[KEY, ..., RATE, ...]]，取首行的配置下标字段
// 参数 ctx: 上下文
// 返回: 资金费率读数
func (f *FundingPoller) FetchFundingRate(ctx context.Context) (decimal.Decimal, error) {
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("keys", f.symbol).
		Get("/status/deriv")
	if err != nil {
		return decimal.Zero, fmt.Errorf("请求资金费率失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return decimal.Zero, fmt.Errorf("资金费率接口返回 %d", resp.StatusCode())
	}

	return extractRate(resp.Body(), f.fieldIndex)
}

// extractRate 从 status/deriv 响应中提取费率标量
// 参数 body: 响应原文
// 参数 fieldIndex: 字段下标
func extractRate(body []byte, fieldIndex int) (decimal.Decimal, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var rows [][]interface{}
	if err := dec.Decode(&rows); err != nil {
		return decimal.Zero, fmt.Errorf("解析资金费率响应失败: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("资金费率响应为空")
	}

	row := rows[0]
	if fieldIndex >= len(row) {
		return decimal.Zero, fmt.Errorf("字段下标 %d 超出行长度 %d", fieldIndex, len(row))
	}

	n, ok := row[fieldIndex].(json.Number)
	if !ok {
		return decimal.Zero, fmt.Errorf("字段 %d 不是数值: %T", fieldIndex, row[fieldIndex])
	}
	return decparse.Number(n)
}
