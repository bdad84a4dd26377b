package notify

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

// DefaultTelegramAPI Telegram Bot API 地址
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender Telegram Bot 通知传输
type TelegramSender struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender 创建 Telegram 传输
// 参数 apiURL: Bot API 地址，为空时使用 DefaultTelegramAPI
// 参数 timeout: 请求超时，<=0 时为 10 秒
func NewTelegramSender(apiURL, token, chatID string, timeout time.Duration) *TelegramSender {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard Keyboard `json:"inline_keyboard"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text"`
	ShowAlert       bool   `json:"show_alert"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send 发送纯文本
func (t *TelegramSender) Send(ctx context.Context, text string) error {
	return t.call(ctx, "sendMessage", sendMessageRequest{ChatID: t.chatID, Text: text})
}

// SendWithButtons 发送带内联键盘的消息
func (t *TelegramSender) SendWithButtons(ctx context.Context, text string, kb Keyboard) error {
	return t.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      t.chatID,
		Text:        text,
		ReplyMarkup: &replyMarkup{InlineKeyboard: kb},
	})
}

// AnswerCallback 应答按钮回调
func (t *TelegramSender) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	return t.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
}

func (t *TelegramSender) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 %s 请求失败: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.apiURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 %s 请求失败: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("调用 Telegram %s 失败: %w", method, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out apiResponse
	if err := json.Unmarshal(data, &out); err != nil || resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("Telegram %s 返回错误: status=%d, %s", method, resp.StatusCode, out.Description)
	}
	return nil
}
