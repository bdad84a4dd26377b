package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"server-availability-monitor/internal/core/model"
)

// ErrSnapshotUnavailable 快照为空或无法获取
var ErrSnapshotUnavailable = errors.New("无法获取可用性快照")

// configuredJSON 配置级别条目的线上格式
type configuredJSON struct {
	Datacenters map[string]string `json:"datacenters"`
	Memory      string            `json:"memory"`
	Storage     string            `json:"storage"`
	Options     []string          `json:"options"`
}

// AvailabilityClient 可用性快照客户端
type AvailabilityClient struct {
	http httpClient
}

// NewAvailabilityClient 创建快照客户端
// 参数 baseURL: 内部 API 地址，如 http://127.0.0.1:19998
// 参数 timeout: 请求超时，<=0 使用默认值
func NewAvailabilityClient(baseURL, apiKey string, timeout time.Duration) *AvailabilityClient {
	if timeout <= 0 {
		timeout = DefaultAvailabilityTimeout
	}
	return &AvailabilityClient{http: newHTTPClient(baseURL, apiKey, timeout)}
}

// Availability 获取型号当前的可用性快照
func (c *AvailabilityClient) Availability(ctx context.Context, planCode string) (model.Snapshot, error) {
	var raw map[string]json.RawMessage
	path := "/api/internal/monitor/availability?plan_code=" + url.QueryEscape(planCode)
	if err := c.http.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("请求 %s 可用性失败: %w", planCode, err)
	}
	return DecodeSnapshot(raw)
}

// DecodeSnapshot 将线上 JSON 解码为快照
// 值为字符串时是旧版扁平状态（键为数据中心），
// 值为含 datacenters 的对象时是配置级别状态（键为配置 ID）。
// 条目按键排序，保证遍历顺序稳定。
func DecodeSnapshot(raw map[string]json.RawMessage) (model.Snapshot, error) {
	if len(raw) == 0 {
		return nil, ErrSnapshotUnavailable
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap := make(model.Snapshot, 0, len(keys))
	for _, k := range keys {
		v := raw[k]
		var status string
		if err := json.Unmarshal(v, &status); err == nil {
			snap = append(snap, model.FlatStatus{Datacenter: k, Status: status})
			continue
		}

		var cfg configuredJSON
		if err := json.Unmarshal(v, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置 %s 失败: %w", k, err)
		}
		if cfg.Datacenters == nil {
			// 既不是字符串也没有 datacenters，忽略
			continue
		}
		snap = append(snap, model.ConfiguredStatus{
			ConfigID:    k,
			Memory:      cfg.Memory,
			Storage:     cfg.Storage,
			Options:     cfg.Options,
			Datacenters: cfg.Datacenters,
		})
	}

	if len(snap) == 0 {
		return nil, ErrSnapshotUnavailable
	}
	return snap, nil
}
