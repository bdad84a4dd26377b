package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"server-availability-monitor/internal/core/model"
)

// ErrNoPrice 价格服务未返回有效价格
var ErrNoPrice = errors.New("价格服务未返回有效价格")

type priceRequest struct {
	PlanCode   string   `json:"plan_code"`
	Datacenter string   `json:"datacenter"`
	Options    []string `json:"options"`
}

type priceResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Price   *struct {
		Prices struct {
			WithTax      *float64 `json:"withTax"`
			CurrencyCode string   `json:"currencyCode"`
		} `json:"prices"`
	} `json:"price"`
}

// PriceClient 价格查询客户端
type PriceClient struct {
	http httpClient
}

// NewPriceClient 创建价格客户端
// 参数 timeout: 请求超时，<=0 使用默认 15 秒
func NewPriceClient(baseURL, apiKey string, timeout time.Duration) *PriceClient {
	if timeout <= 0 {
		timeout = DefaultPriceTimeout
	}
	return &PriceClient{http: newHTTPClient(baseURL, apiKey, timeout)}
}

// QueryPrice 查询指定配置在某机房的含税价格
func (c *PriceClient) QueryPrice(ctx context.Context, planCode, datacenter string, options []string) (model.Quote, error) {
	if options == nil {
		options = []string{}
	}
	var resp priceResponse
	err := c.http.do(ctx, http.MethodPost, "/api/internal/monitor/price", priceRequest{
		PlanCode:   planCode,
		Datacenter: datacenter,
		Options:    options,
	}, &resp)
	if err != nil {
		return model.Quote{}, fmt.Errorf("价格查询失败: %w", err)
	}
	if !resp.Success || resp.Price == nil {
		if resp.Error != "" {
			return model.Quote{}, fmt.Errorf("%w: %s", ErrNoPrice, resp.Error)
		}
		return model.Quote{}, ErrNoPrice
	}
	if resp.Price.Prices.WithTax == nil {
		return model.Quote{}, fmt.Errorf("%w: withTax 为空", ErrNoPrice)
	}

	currency := resp.Price.Prices.CurrencyCode
	if currency == "" {
		currency = "EUR"
	}
	return model.Quote{Amount: *resp.Price.Prices.WithTax, Currency: currency}, nil
}
