// Package notify 通知器测试
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestSend_PostsContent(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("解析消息体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, zap.NewNop())
	if err := n.Send(context.Background(), "每日状态报告"); err != nil {
		t.Fatalf("Send 失败: %v", err)
	}
	if got.Content != "每日状态报告" {
		t.Fatalf("content=%q", got.Content)
	}
}

func TestSend_UnconfiguredWebhookSkips(t *testing.T) {
	n := NewNotifier("", zap.NewNop())
	if err := n.Send(context.Background(), "ignored"); err != nil {
		t.Fatalf("未配置 Webhook 应静默成功: %v", err)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, zap.NewNop())
	if err := n.Send(context.Background(), "x"); err == nil {
		t.Fatal("非 200/204 状态应返回错误")
	}
}
