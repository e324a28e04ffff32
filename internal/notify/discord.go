// Package notify 通过 Discord Webhook 发送状态通知。
// Webhook 地址属于机密，由环境变量提供；未配置时跳过发送而非报错，
// 通知是旁路能力，缺失不应影响主循环。
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// webhookMessage Discord Webhook 消息体
type webhookMessage struct {
	// Content 消息正文
	Content string `json:"content"`
}

// Notifier Discord Webhook 通知器
type Notifier struct {
	// http HTTP 客户端
	http *resty.Client
	// webhookURL Webhook 地址；为空时跳过发送
	webhookURL string
	// logger 日志记录器
	logger *zap.Logger
}

// NewNotifier 创建通知器
// 参数 webhookURL: Discord Webhook 地址，可为空
// 参数 logger: 日志记录器
func NewNotifier(webhookURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		http:       resty.New().SetTimeout(10 * time.Second),
		webhookURL: webhookURL,
		logger:     logger.Named("notify"),
	}
}

// Send 发送一条文本通知
// Webhook 未配置时记录日志并静默成功
// 参数 ctx: 上下文
// 参数 content: 消息正文
func (n *Notifier) Send(ctx context.Context, content string) error {
	if n.webhookURL == "" {
		n.logger.Debug("Webhook 未配置，跳过通知")
		return nil
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookMessage{Content: content}).
		Post(n.webhookURL)
	if err != nil {
		return fmt.Errorf("发送 Discord 通知失败: %w", err)
	}
	// Discord 成功返回 204，部分代理返回 200
	if code := resp.StatusCode(); code != 200 && code != 204 {
		return fmt.Errorf("Discord 返回 %d", code)
	}

	n.logger.Info("Discord 通知已发送", zap.Int("bytes", len(content)))
	return nil
}
