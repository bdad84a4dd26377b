package model

import "time"

// OrderDescriptor 完整下单参数，通过消息令牌恢复
type OrderDescriptor struct {
	// PlanCode 服务器型号
	PlanCode string `json:"planCode"`
	// Datacenter 数据中心
	Datacenter string `json:"datacenter"`
	// Options 选项代码
	Options []string `json:"options"`
	// Config 完整配置描述
	Config *ConfigInfo `json:"configInfo,omitempty"`
	// CreatedAt 生成时间
	CreatedAt time.Time `json:"timestamp"`
}

// ToRequest 由下单参数构造下单请求
func (d OrderDescriptor) ToRequest(skipPriceCheck bool) OrderRequest {
	return OrderRequest{
		PlanCode:       d.PlanCode,
		Datacenter:     d.Datacenter,
		Options:        append([]string(nil), d.Options...),
		SkipPriceCheck: skipPriceCheck,
	}
}

// OrderRequest 发往下单服务的单个请求
type OrderRequest struct {
	// PlanCode 服务器型号
	PlanCode string `json:"planCode"`
	// Datacenter 数据中心
	Datacenter string `json:"datacenter"`
	// Options 选项代码，为空时由下单服务自动匹配
	Options []string `json:"options"`
	// SkipPriceCheck 型号已验证有效时跳过价格核验
	SkipPriceCheck bool `json:"skipPriceCheck"`
	// SkipDuplicateCheck 批量下单时绕过下单服务的重复下单时间窗
	SkipDuplicateCheck bool `json:"skipDuplicateCheck"`
}
