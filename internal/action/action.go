// Package action 提供 HTTP 接口：处理通知按钮回调并查询监控状态。
// 按钮只携带令牌，令牌未知或过期时直接拒绝，不做任何兜底下单。
package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"server-availability-monitor/internal/cache"
	"server-availability-monitor/internal/core/model"
	"server-availability-monitor/internal/core/order"
	"server-availability-monitor/internal/monitor"
	"server-availability-monitor/internal/notify"
)

// StatusReporter 监控状态来源
type StatusReporter interface {
	Status() monitor.Status
}

// CallbackAnswerer 按钮回调应答（如 Telegram answerCallbackQuery）
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
}

// MonitorControl 监控控制操作
type MonitorControl interface {
	CheckNewServers(ctx context.Context, servers []model.ServerInfo) []model.ServerInfo
	SetInterval(requested time.Duration) time.Duration
}

// Handler 动作处理器
type Handler struct {
	Tokens  cache.TokenStore
	Orders  order.Submitter
	Prices  *cache.PriceCache
	Monitor StatusReporter
	// Control 可选，nil 时控制接口返回 503
	Control MonitorControl
	// Answerer 可选
	Answerer CallbackAnswerer
	Logger   *zap.Logger
}

type callbackRequest struct {
	CallbackQueryID string `json:"callbackQueryId"`
	Data            string `json:"data"`
}

type actionResponse struct {
	Success    bool     `json:"success"`
	PlanCode   string   `json:"planCode,omitempty"`
	Datacenter string   `json:"datacenter,omitempty"`
	Options    []string `json:"options,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// NewRouter 创建路由
func NewRouter(h *Handler) *chi.Mux {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	h.Logger = h.Logger.Named("action")

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(45 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/monitor/status", h.status)
	r.Post("/api/monitor/servers", h.servers)
	r.Put("/api/monitor/interval", h.interval)
	r.Post("/api/actions/callback", h.callback)
	r.Post("/api/actions/{token}", h.orderByToken)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	if h.Monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, actionResponse{Error: "监控未初始化"})
		return
	}
	writeJSON(w, http.StatusOK, h.Monitor.Status())
}

type serversResponse struct {
	Known    int                `json:"knownServerCount"`
	NewCount int                `json:"newServerCount"`
	Servers  []model.ServerInfo `json:"newServers"`
}

// servers 接收服务器目录，对比已知基线并提醒新上架的型号
// 请求体为 [{"planCode": "...", "name": "...", ...}]。
func (h *Handler) servers(w http.ResponseWriter, r *http.Request) {
	if h.Control == nil {
		writeJSON(w, http.StatusServiceUnavailable, actionResponse{Error: "监控未初始化"})
		return
	}
	var list []model.ServerInfo
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&list); err != nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: "无效的服务器列表"})
		return
	}

	fresh := h.Control.CheckNewServers(r.Context(), list)
	out := serversResponse{NewCount: len(fresh), Servers: fresh}
	if out.Servers == nil {
		out.Servers = []model.ServerInfo{}
	}
	if h.Monitor != nil {
		out.Known = h.Monitor.Status().KnownServers
	}
	writeJSON(w, http.StatusOK, out)
}

type intervalRequest struct {
	Interval int `json:"interval"`
}

// interval 修改检查间隔（固定为 5 秒，返回生效值）
func (h *Handler) interval(w http.ResponseWriter, r *http.Request) {
	if h.Control == nil {
		writeJSON(w, http.StatusServiceUnavailable, actionResponse{Error: "监控未初始化"})
		return
	}
	var req intervalRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: "无效的请求"})
		return
	}
	eff := h.Control.SetInterval(time.Duration(req.Interval) * time.Second)
	writeJSON(w, http.StatusOK, intervalRequest{Interval: int(eff / time.Second)})
}

// callback 处理按钮回调
// 请求体为 {"callbackQueryId": "...", "data": "<回调数据>"}，
// 也接受直接提交的回调数据字符串。
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: "读取请求失败"})
		return
	}

	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Data == "" {
		req = callbackRequest{Data: strings.TrimSpace(string(body))}
	}

	cb, err := notify.ParseCallbackData(req.Data)
	if err != nil || cb.Action != notify.ActionAddToQueue {
		h.Logger.Warn("无效的回调数据", zap.String("data", req.Data), zap.Error(err))
		h.answer(r.Context(), req.CallbackQueryID, "❌ 无效的操作", true)
		writeJSON(w, http.StatusBadRequest, actionResponse{Error: "无效的回调数据"})
		return
	}

	code, resp := h.execute(r.Context(), cb.Token)
	if resp.Success {
		h.answer(r.Context(), req.CallbackQueryID, "✅ 已提交下单: "+resp.PlanCode+"@"+resp.Datacenter, false)
	} else {
		h.answer(r.Context(), req.CallbackQueryID, "❌ "+resp.Error, true)
	}
	writeJSON(w, code, resp)
}

func (h *Handler) orderByToken(w http.ResponseWriter, r *http.Request) {
	code, resp := h.execute(r.Context(), chi.URLParam(r, "token"))
	writeJSON(w, code, resp)
}

// execute 解析令牌并提交一个下单请求
func (h *Handler) execute(ctx context.Context, token string) (int, actionResponse) {
	d, err := h.Tokens.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, cache.ErrTokenNotFound) {
			h.Logger.Warn("令牌不存在或已过期", zap.String("token", token))
			return http.StatusGone, actionResponse{Error: "消息已过期，请等待新的上架通知"}
		}
		h.Logger.Error("解析令牌失败", zap.String("token", token), zap.Error(err))
		return http.StatusInternalServerError, actionResponse{Error: "解析令牌失败"}
	}

	skipPrice := h.Prices != nil && h.Prices.IsValid(d.PlanCode)
	req := d.ToRequest(skipPrice)
	if err := h.Orders.SubmitOrder(ctx, req); err != nil {
		h.Logger.Warn("一键下单失败",
			zap.String("plan", d.PlanCode),
			zap.String("dc", d.Datacenter),
			zap.Error(err))
		return http.StatusBadGateway, resp(d, "下单失败")
	}

	h.Logger.Info("一键下单已提交",
		zap.String("plan", d.PlanCode),
		zap.String("dc", d.Datacenter),
		zap.Strings("options", d.Options),
		zap.Bool("skip_price_check", skipPrice))
	out := resp(d, "")
	out.Success = true
	return http.StatusOK, out
}

func resp(d model.OrderDescriptor, errText string) actionResponse {
	return actionResponse{PlanCode: d.PlanCode, Datacenter: d.Datacenter, Options: d.Options, Error: errText}
}

func (h *Handler) answer(ctx context.Context, id, text string, alert bool) {
	if h.Answerer == nil || id == "" {
		return
	}
	if err := h.Answerer.AnswerCallback(ctx, id, text, alert); err != nil {
		h.Logger.Warn("应答回调失败", zap.String("id", id), zap.Error(err))
	}
}
