// Package notify 负责通知消息的构建与投递。
// 传输层可能不支持按钮，此时自动退化为纯文本。
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Button 内联按钮
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// Keyboard 内联键盘，按行组织
type Keyboard [][]Button

// Message 一条待发送的通知
type Message struct {
	Text     string
	Keyboard Keyboard
}

// Sender 纯文本通知传输
type Sender interface {
	Send(ctx context.Context, text string) error
}

// ButtonSender 支持内联按钮的通知传输
type ButtonSender interface {
	Sender
	SendWithButtons(ctx context.Context, text string, kb Keyboard) error
}

// Deliver 投递消息
// 传输层不支持按钮或消息没有按钮时发送纯文本。
func Deliver(ctx context.Context, s Sender, msg Message) error {
	if s == nil {
		return errors.New("未配置通知传输")
	}
	if bs, ok := s.(ButtonSender); ok && len(msg.Keyboard) > 0 {
		return bs.SendWithButtons(ctx, msg.Text, msg.Keyboard)
	}
	return s.Send(ctx, msg.Text)
}

// Fanout 同时投递到多个传输，任意一个成功即视为成功
type Fanout []Sender

// Send 发送纯文本
func (f Fanout) Send(ctx context.Context, text string) error {
	return f.each(func(s Sender) error { return s.Send(ctx, text) })
}

// SendWithButtons 发送带按钮的消息，不支持按钮的传输退化为纯文本
func (f Fanout) SendWithButtons(ctx context.Context, text string, kb Keyboard) error {
	return f.each(func(s Sender) error { return Deliver(ctx, s, Message{Text: text, Keyboard: kb}) })
}

func (f Fanout) each(fn func(Sender) error) error {
	if len(f) == 0 {
		return errors.New("未配置通知传输")
	}
	var errs []error
	for i, s := range f {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("传输 #%d: %w", i, err))
		}
	}
	if len(errs) == len(f) {
		return errors.Join(errs...)
	}
	return nil
}
