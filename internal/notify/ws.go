package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"server-availability-monitor/internal/util/backoff"
	"server-availability-monitor/internal/util/timeutil"
)

// wsEnvelope 推送到 WebSocket 的消息格式
type wsEnvelope struct {
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Keyboard Keyboard `json:"keyboard,omitempty"`
	SentAt   string   `json:"sentAt"`
}

// WSSender WebSocket 推送传输
// 连接按需建立；写失败时关闭连接，按退避等待后重连并重试一次。
type WSSender struct {
	url    string
	logger *zap.Logger

	// connMu 串行化写入（gorilla/websocket 不允许并发写）
	connMu  sync.Mutex
	conn    *websocket.Conn
	backoff *backoff.Backoff
}

// NewWSSender 创建 WebSocket 推送传输
func NewWSSender(url string, logger *zap.Logger) *WSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSender{
		url:     url,
		logger:  logger.Named("ws"),
		backoff: backoff.New(200*time.Millisecond, 5*time.Second, 0.2),
	}
}

// Send 推送纯文本
func (w *WSSender) Send(ctx context.Context, text string) error {
	return w.push(ctx, wsEnvelope{Type: "notification", Text: text})
}

// SendWithButtons 推送带按钮的消息
func (w *WSSender) SendWithButtons(ctx context.Context, text string, kb Keyboard) error {
	return w.push(ctx, wsEnvelope{Type: "notification", Text: text, Keyboard: kb})
}

func (w *WSSender) push(ctx context.Context, env wsEnvelope) error {
	env.SentAt = timeutil.Format(timeutil.Now())
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("序列化推送消息失败: %w", err)
	}

	w.connMu.Lock()
	defer w.connMu.Unlock()

	err = w.writeLocked(ctx, data)
	if err == nil {
		return nil
	}
	w.logger.Warn("WebSocket 推送失败，准备重连", zap.Error(err))

	w.closeLocked()
	if err := w.backoff.Wait(ctx); err != nil {
		return err
	}
	return w.writeLocked(ctx, data)
}

func (w *WSSender) writeLocked(ctx context.Context, data []byte) error {
	if w.conn == nil {
		if err := w.connectLocked(ctx); err != nil {
			return err
		}
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("写入 WebSocket 失败: %w", err)
	}
	return nil
}

func (w *WSSender) connectLocked(ctx context.Context) error {
	header := http.Header{}
	header.Set("User-Agent", "server-availability-monitor/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("连接 WebSocket 失败: %w", err)
	}
	w.conn = conn
	w.backoff.Reset()
	w.logger.Info("WebSocket 连接成功", zap.String("url", w.url))
	return nil
}

func (w *WSSender) closeLocked() {
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// Close 关闭连接
func (w *WSSender) Close() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	w.closeLocked()
	return nil
}
