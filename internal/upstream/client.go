// Package upstream 封装监控器依赖的外部 HTTP 服务：
// 可用性快照、价格查询与快速下单。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// 默认超时
const (
	DefaultAvailabilityTimeout = 15 * time.Second
	DefaultPriceTimeout        = 15 * time.Second
	DefaultOrderTimeout        = 30 * time.Second
)

// StatusError 非 2xx 响应
type StatusError struct {
	// Code HTTP 状态码
	Code int
	// Body 响应体（截断）
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP 状态码错误: %d, body=%s", e.Code, e.Body)
}

// httpClient 共享的 JSON HTTP 调用逻辑
type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newHTTPClient(baseURL, apiKey string, timeout time.Duration) httpClient {
	return httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// do 执行请求并把 JSON 响应解码到 out（out 为 nil 时丢弃响应体）
func (c httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "server-availability-monitor/1.0")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(data)
		if len(text) > 512 {
			text = text[:512]
		}
		return &StatusError{Code: resp.StatusCode, Body: text}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
