// Bitfinex v2 认证 REST 客户端。
// 签名: HMAC-SHA384( "/api/v2" + path + nonce + body )，十六进制小写，
// nonce 为微秒时间戳字符串，随 bfx-nonce / bfx-apikey / bfx-signature 头发送。
// 每次调用前先通过限流器获取令牌；失败只记日志不重试，
// 下一个分配周期会基于最新状态重新决策。
package bitfinex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"funding-liquidity-engine/internal/config"
	"funding-liquidity-engine/internal/util/decparse"
	"funding-liquidity-engine/internal/util/ratelimit"
)

// apiPrefix 签名载荷中的固定路径前缀
const apiPrefix = "/api/v2"

// OfferSubmitRequest 资金报价提交请求体
type OfferSubmitRequest struct {
	// Type 订单类型，固定 LIMIT
	Type string `json:"type"`
	// Symbol 资金币种: fUSD
	Symbol string `json:"symbol"`
	// Amount 出借数量（字符串编码定点数）
	Amount string `json:"amount"`
	// Rate 日利率（字符串编码定点数）
	Rate string `json:"rate"`
	// Period 借贷期限（天）
	Period int `json:"period"`
	// Flags 订单标志，固定 0
	Flags int `json:"flags"`
}

// OfferCancelRequest 资金报价撤销请求体
type OfferCancelRequest struct {
	// ID 交易所订单 ID
	ID int64 `json:"id"`
}

// RestClient Bitfinex 认证 REST 客户端
type RestClient struct {
	// http resty 客户端，基地址与超时在构造时固定
	http *resty.Client
	// limiter 认证调用限流器
	limiter *ratelimit.Limiter
	// secrets API 凭据
	secrets config.Secrets
	// logger 日志记录器
	logger *zap.Logger
}

// NewRestClient 创建认证 REST 客户端
// 参数 cfg: 交易所连接配置
// 参数 secrets: API 凭据
// 参数 limiter: 限流器（与其他认证调用方共享）
// 参数 logger: 日志记录器
func NewRestClient(cfg *config.ExchangeConfig, secrets config.Secrets, limiter *ratelimit.Limiter, logger *zap.Logger) *RestClient {
	httpClient := resty.New().
		SetBaseURL(cfg.RestURL).
		SetTimeout(time.Duration(cfg.RequestTimeoutMs) * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &RestClient{
		http:    httpClient,
		limiter: limiter,
		secrets: secrets,
		logger:  logger.Named("bitfinex-rest"),
	}
}

// sign 计算请求签名
// 参数 path: 认证路径，如 /auth/w/funding/offer/submit
// 参数 nonce: 微秒时间戳字符串
// 参数 body: JSON 请求体原文
// 返回: 十六进制小写签名
func (r *RestClient) sign(path, nonce, body string) string {
	mac := hmac.New(sha512.New384, []byte(r.secrets.APISecret))
	mac.Write([]byte(apiPrefix + path + nonce + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// doSigned 发送一次签名 POST 请求
// 先经限流器获取令牌，再附加认证头发送
func (r *RestClient) doSigned(ctx context.Context, path, body string) (*resty.Response, error) {
	if r.secrets.APIKey == "" || r.secrets.APISecret == "" {
		return nil, fmt.Errorf("缺少 API 凭据")
	}

	r.limiter.Acquire()

	nonce := strconv.FormatInt(time.Now().UnixMicro(), 10)
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("bfx-nonce", nonce).
		SetHeader("bfx-apikey", r.secrets.APIKey).
		SetHeader("bfx-signature", r.sign(path, nonce, body)).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("请求 %s 返回 %d: %s", path, resp.StatusCode(), previewOf(resp.Body()))
	}
	return resp, nil
}

// SubmitOffer 提交资金出借报价
// 参数 ctx: 上下文
// 参数 symbol: 资金币种
// 参数 amount: 出借数量
// 参数 rate: 日利率
// 参数 period: 借贷期限（天）
// 返回: 交易所分配的订单 ID
func (r *RestClient) SubmitOffer(ctx context.Context, symbol string, amount, rate decimal.Decimal, period int) (int64, error) {
	req := OfferSubmitRequest{
		Type:   "LIMIT",
		Symbol: symbol,
		Amount: amount.String(),
		Rate:   rate.String(),
		Period: period,
		Flags:  0,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("序列化报价请求失败: %w", err)
	}

	resp, err := r.doSigned(ctx, "/auth/w/funding/offer/submit", string(body))
	if err != nil {
		return 0, err
	}

	id, err := parseNotificationOfferID(resp.Body())
	if err != nil {
		return 0, fmt.Errorf("解析报价回执失败: %w", err)
	}

	r.logger.Info("资金报价已提交",
		zap.Int64("orderId", id),
		zap.String("amount", amount.String()),
		zap.String("rate", rate.String()),
		zap.Int("period", period))
	return id, nil
}

// CancelOffer 撤销资金出借报价
// 参数 ctx: 上下文
// 参数 id: 交易所订单 ID
func (r *RestClient) CancelOffer(ctx context.Context, id int64) error {
	body, err := json.Marshal(OfferCancelRequest{ID: id})
	if err != nil {
		return fmt.Errorf("序列化撤单请求失败: %w", err)
	}

	if _, err := r.doSigned(ctx, "/auth/w/funding/offer/cancel", string(body)); err != nil {
		return err
	}

	r.logger.Info("资金报价已撤销", zap.Int64("orderId", id))
	return nil
}

// FetchBalances 拉取资金钱包余额
// 读取 funding 钱包中与资金币种对应的法币/币种行:
// [WALLET_TYPE, CURRENCY, BALANCE, UNSETTLED_INTEREST, AVAILABLE_BALANCE, ...]
// 已出借部分按 BALANCE - AVAILABLE_BALANCE 推算（锁定在报价与贷出中的资金不可用）
// 参数 ctx: 上下文
// 参数 symbol: 资金币种，如 fUSD
// 返回: 可用余额与已出借余额
func (r *RestClient) FetchBalances(ctx context.Context, symbol string) (available, lent decimal.Decimal, err error) {
	resp, err := r.doSigned(ctx, "/auth/r/wallets", "{}")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	currency := strings.TrimPrefix(symbol, "f")

	dec := json.NewDecoder(strings.NewReader(string(resp.Body())))
	dec.UseNumber()
	var rows [][]interface{}
	if err := dec.Decode(&rows); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("解析钱包响应失败: %w", err)
	}

	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		walletType, _ := row[0].(string)
		rowCurrency, _ := row[1].(string)
		if walletType != "funding" || rowCurrency != currency {
			continue
		}

		balance := decimal.Zero
		if n, ok := row[2].(json.Number); ok {
			balance = decparse.MustNumber(n)
		}
		avail := balance
		// AVAILABLE_BALANCE 在网关未计算时为 null
		if n, ok := row[4].(json.Number); ok {
			avail = decparse.MustNumber(n)
		}

		locked := balance.Sub(avail)
		if locked.IsNegative() {
			locked = decimal.Zero
		}
		return avail, locked, nil
	}

	return decimal.Zero, decimal.Zero, nil
}

// parseNotificationOfferID 从通知回执中提取订单 ID
// 回执: [MTS, TYPE, MESSAGE_ID, null, DATA, CODE, STATUS, TEXT]
// DATA 为报价数组 [ID, SYMBOL, ...]，部分端点会再包一层数组
func parseNotificationOfferID(body []byte) (int64, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var arr []interface{}
	if err := dec.Decode(&arr); err != nil {
		return 0, fmt.Errorf("回执不是数组: %w", err)
	}
	if len(arr) < 8 {
		return 0, fmt.Errorf("回执字段不足: %d", len(arr))
	}

	if status, _ := arr[6].(string); status != "SUCCESS" {
		text, _ := arr[7].(string)
		return 0, fmt.Errorf("网关拒绝: %s", text)
	}

	data, ok := arr[4].([]interface{})
	if !ok || len(data) == 0 {
		return 0, fmt.Errorf("回执缺少数据段")
	}
	if nested, ok := data[0].([]interface{}); ok {
		if len(nested) == 0 {
			return 0, fmt.Errorf("回执数据段为空")
		}
		data = nested
	}

	idNum, ok := data[0].(json.Number)
	if !ok {
		return 0, fmt.Errorf("订单 ID 不是数值: %T", data[0])
	}
	return decparse.Int(idNum)
}
