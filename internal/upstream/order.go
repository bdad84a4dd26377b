package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"server-availability-monitor/internal/core/model"
)

// OrderClient 快速下单客户端（需要 X-API-Key）
type OrderClient struct {
	http httpClient
}

// NewOrderClient 创建下单客户端
// 参数 timeout: 请求超时，<=0 使用默认 30 秒
func NewOrderClient(baseURL, apiKey string, timeout time.Duration) *OrderClient {
	if timeout <= 0 {
		timeout = DefaultOrderTimeout
	}
	return &OrderClient{http: newHTTPClient(baseURL, apiKey, timeout)}
}

// SubmitOrder 提交单个下单请求，非 2xx 视为失败
func (c *OrderClient) SubmitOrder(ctx context.Context, req model.OrderRequest) error {
	if req.Options == nil {
		req.Options = []string{}
	}
	if err := c.http.do(ctx, http.MethodPost, "/api/config-sniper/quick-order", req, nil); err != nil {
		return fmt.Errorf("下单 %s@%s 失败: %w", req.PlanCode, req.Datacenter, err)
	}
	return nil
}
