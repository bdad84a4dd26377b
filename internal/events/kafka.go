package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink 将事件发布到 Kafka，消息键为型号（同一型号的事件保持顺序）
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink 创建 Kafka 输出
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}}
}

// Publish 同步写入一条事件
func (k *KafkaSink) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.PlanCode),
		Value: b,
		Time:  ev.PublishedAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.Type)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发布事件到 Kafka 失败: %w", err)
	}
	return nil
}

// Close 关闭 writer
func (k *KafkaSink) Close() error {
	return k.w.Close()
}
