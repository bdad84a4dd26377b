package notify

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 回调数据约束
const (
	// ActionAddToQueue 一键下单动作
	ActionAddToQueue = "add_to_queue"
	// MaxCallbackBytes 回调数据的字节上限
	MaxCallbackBytes = 64
	// base64Prefix base64 编码的回调数据前缀
	base64Prefix = "b64:"
)

// ErrCallbackTooLong 回调数据超出字节上限
var ErrCallbackTooLong = errors.New("回调数据超出 64 字节")

// Callback 按钮回调数据，只携带令牌
type Callback struct {
	Action string `json:"a"`
	Token  string `json:"u"`
}

// EncodeCallback 编码回调数据，如 {"a":"add_to_queue","u":"<uuid>"}
func EncodeCallback(token string) (string, error) {
	b, err := json.Marshal(Callback{Action: ActionAddToQueue, Token: token})
	if err != nil {
		return "", fmt.Errorf("序列化回调数据失败: %w", err)
	}
	if len(b) > MaxCallbackBytes {
		return "", ErrCallbackTooLong
	}
	return string(b), nil
}

// ParseCallbackData 解析回调数据
// 支持原始 JSON 与 "b64:" 前缀的 base64 JSON（缺少填充时自动补齐）。
func ParseCallbackData(s string) (Callback, error) {
	var cb Callback
	data := []byte(s)
	if p, ok := strings.CutPrefix(s, base64Prefix); ok {
		p = strings.TrimRight(p, "=")
		decoded, err := base64.RawStdEncoding.DecodeString(p)
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(p)
		}
		if err != nil {
			return cb, fmt.Errorf("解码回调数据失败: %w", err)
		}
		data = decoded
	}
	if err := json.Unmarshal(data, &cb); err != nil {
		return cb, fmt.Errorf("解析回调数据失败: %w", err)
	}
	if cb.Token == "" {
		return cb, errors.New("回调数据缺少令牌")
	}
	return cb, nil
}
