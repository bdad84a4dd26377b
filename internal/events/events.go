// Package events 发布状态变化事件，供下游审计或分析使用。
package events

import (
	"context"
	"errors"
	"time"

	"server-availability-monitor/internal/core/model"
)

// TypeTransition 状态变化事件类型
const TypeTransition = "availability.transition"

// Event 一次已通知的状态变化
type Event struct {
	// Type 事件类型
	Type string `json:"type"`
	// PlanCode 服务器型号
	PlanCode string `json:"planCode"`
	// ServerName 服务器名称
	ServerName string `json:"serverName,omitempty"`
	// Entry 对应的历史记录
	Entry model.HistoryEntry `json:"entry"`
	// PublishedAt 发布时间
	PublishedAt time.Time `json:"publishedAt"`
}

// NewTransition 由历史记录构造事件
func NewTransition(sub *model.Subscription, e model.HistoryEntry, now time.Time) Event {
	return Event{
		Type:        TypeTransition,
		PlanCode:    sub.PlanCode,
		ServerName:  sub.ServerName,
		Entry:       e,
		PublishedAt: now,
	}
}

// Sink 事件输出
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Multi 同时输出到多个 Sink
type Multi []Sink

// Publish 依次发布，汇总所有错误
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有 Sink
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop 丢弃所有事件
type Nop struct{}

// Publish 丢弃事件
func (Nop) Publish(context.Context, Event) error { return nil }

// Close 无操作
func (Nop) Close() error { return nil }
