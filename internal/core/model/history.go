package model

import (
	"fmt"
	"time"
)

// HistoryEntry 一次已通知的状态变化，追加后不可变
type HistoryEntry struct {
	// Timestamp 变化时间（带时区）
	Timestamp time.Time `json:"timestamp"`
	// Datacenter 数据中心
	Datacenter string `json:"datacenter"`
	// Status 新状态
	Status string `json:"status"`
	// ChangeType 变化类型
	ChangeType ChangeType `json:"changeType"`
	// OldStatus 旧状态，首次检查时为空
	OldStatus string `json:"oldStatus,omitempty"`
	// Config 配置描述（扁平数据为 nil）
	Config *ConfigInfo `json:"config,omitempty"`
}

// Quote 价格报价
type Quote struct {
	// Amount 含税金额
	Amount float64 `json:"amount"`
	// Currency 币种代码，如 EUR
	Currency string `json:"currency"`
}

// Text 渲染报价文本，如 "€12.99/月"
func (q Quote) Text() string {
	symbol := q.Currency
	switch q.Currency {
	case "EUR", "":
		symbol = "€"
	case "USD":
		symbol = "$"
	}
	return fmt.Sprintf("%s%.2f/月", symbol, q.Amount)
}
