// Package config 负责加载和验证 YAML 配置文件。
// 提供监控器所需的所有配置项：上游服务、缓存、通知传输、事件输出与初始订阅。
// 敏感信息可通过环境变量（或 .env 文件）覆盖。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"server-availability-monitor/internal/core/model"
)

// 环境变量
const (
	EnvAPIKey        = "MONITOR_API_KEY"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHAT_ID"
	EnvRedisURL      = "REDIS_URL"
)

// MaxHistoryLimit 每个订阅最多保留的历史条数
const MaxHistoryLimit = 100

// 令牌存储后端
const (
	TokenBackendMemory = "memory"
	TokenBackendRedis  = "redis"
)

// Config 应用配置根结构
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Monitor 轮询配置
	Monitor MonitorConfig `yaml:"monitor"`
	// Cache 缓存配置
	Cache CacheConfig `yaml:"cache"`
	// Upstream 上游内部 API
	Upstream UpstreamConfig `yaml:"upstream"`
	// Telegram Telegram 通知
	Telegram TelegramConfig `yaml:"telegram"`
	// WS WebSocket 推送
	WS WSConfig `yaml:"ws"`
	// Kafka 事件发布
	Kafka KafkaConfig `yaml:"kafka"`
	// Output 本地事件输出
	Output OutputConfig `yaml:"output"`
	// HTTP 动作接口
	HTTP HTTPConfig `yaml:"http"`
	// Subscriptions 启动时加载的订阅
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// MonitorConfig 轮询配置
type MonitorConfig struct {
	// HistoryLimit 每个订阅保留的历史条数
	HistoryLimit int `yaml:"history_limit"`
	// AutoStart 启动后立即开始轮询
	AutoStart bool `yaml:"auto_start"`
	// StatePath 订阅状态文件，启动时恢复、退出时保存；为空时不持久化
	StatePath string `yaml:"state_path"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// PriceTTLHours 价格缓存有效期（小时）
	PriceTTLHours int `yaml:"price_ttl_hours"`
	// TokenTTLHours 消息令牌有效期（小时）
	TokenTTLHours int `yaml:"token_ttl_hours"`
	// TokenBackend 令牌存储: memory 或 redis
	TokenBackend string `yaml:"token_backend"`
	// RedisURL redis://host:6379/0
	RedisURL string `yaml:"redis_url"`
}

// UpstreamConfig 上游内部 API 配置
type UpstreamConfig struct {
	// BaseURL 内部 API 地址
	BaseURL string `yaml:"base_url"`
	// APIKey 下单接口使用的 X-API-Key
	APIKey string `yaml:"api_key"`
	// AvailabilityTimeoutSec 快照请求超时（秒）
	AvailabilityTimeoutSec int `yaml:"availability_timeout_sec"`
	// PriceTimeoutSec 询价超时（秒）
	PriceTimeoutSec int `yaml:"price_timeout_sec"`
	// OrderTimeoutSec 下单超时（秒）
	OrderTimeoutSec int `yaml:"order_timeout_sec"`
}

// TelegramConfig Telegram 配置，Token 为空时不启用
type TelegramConfig struct {
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Enabled 是否启用
func (t TelegramConfig) Enabled() bool {
	return t.Token != ""
}

// WSConfig WebSocket 推送配置，URL 为空时不启用
type WSConfig struct {
	URL string `yaml:"url"`
}

// KafkaConfig Kafka 配置，Brokers 为空时不启用
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// OutputConfig 本地输出配置
type OutputConfig struct {
	// EventsPath 事件 JSONL 文件路径，为空时不输出
	EventsPath string `yaml:"events_path"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// HTTPConfig 动作接口配置，Addr 为空时不启动
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SubscriptionConfig 订阅配置
type SubscriptionConfig struct {
	PlanCode          string   `yaml:"plan_code"`
	Datacenters       []string `yaml:"datacenters"`
	NotifyAvailable   *bool    `yaml:"notify_available"`
	NotifyUnavailable bool     `yaml:"notify_unavailable"`
	AutoOrder         bool     `yaml:"auto_order"`
	AutoOrderQuantity int      `yaml:"auto_order_quantity"`
	ServerName        string   `yaml:"server_name"`
}

// ToSubscription 转换为订阅（notify_available 缺省为 true）
func (s SubscriptionConfig) ToSubscription() model.Subscription {
	notifyAvail := true
	if s.NotifyAvailable != nil {
		notifyAvail = *s.NotifyAvailable
	}
	return model.Subscription{
		PlanCode:          s.PlanCode,
		Datacenters:       append([]string(nil), s.Datacenters...),
		NotifyAvailable:   notifyAvail,
		NotifyUnavailable: s.NotifyUnavailable,
		AutoOrder:         s.AutoOrder,
		AutoOrderQuantity: s.AutoOrderQuantity,
		ServerName:        s.ServerName,
	}
}

// Load 从文件加载配置并验证
// 先读取同目录的 .env（不存在时忽略），再用环境变量覆盖敏感项。
// 参数 path: 配置文件路径
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

// applyEnv 环境变量覆盖（非空时生效）
func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&c.Upstream.APIKey, EnvAPIKey)
	overlay(&c.Telegram.Token, EnvTelegramToken)
	overlay(&c.Telegram.ChatID, EnvTelegramChat)
	overlay(&c.Cache.RedisURL, EnvRedisURL)
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "server-availability-monitor"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Monitor.HistoryLimit == 0 {
		c.Monitor.HistoryLimit = MaxHistoryLimit
	}

	if c.Cache.PriceTTLHours == 0 {
		c.Cache.PriceTTLHours = 72 // 3 天
	}
	if c.Cache.TokenTTLHours == 0 {
		c.Cache.TokenTTLHours = 24
	}
	if c.Cache.TokenBackend == "" {
		c.Cache.TokenBackend = TokenBackendMemory
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "http://127.0.0.1:19998"
	}
	if c.Upstream.AvailabilityTimeoutSec == 0 {
		c.Upstream.AvailabilityTimeoutSec = 15
	}
	if c.Upstream.PriceTimeoutSec == 0 {
		c.Upstream.PriceTimeoutSec = 15
	}
	if c.Upstream.OrderTimeoutSec == 0 {
		c.Upstream.OrderTimeoutSec = 30
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "availability.transitions"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 返回: 汇总所有问题的描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Monitor.HistoryLimit < 0 || c.Monitor.HistoryLimit > MaxHistoryLimit {
		errs = append(errs, fmt.Sprintf("monitor.history_limit: 历史条数必须在 1-%d 之间", MaxHistoryLimit))
	}
	if c.Cache.PriceTTLHours <= 0 {
		errs = append(errs, "cache.price_ttl_hours: 价格缓存有效期必须为正数")
	}
	if c.Cache.TokenTTLHours <= 0 {
		errs = append(errs, "cache.token_ttl_hours: 令牌有效期必须为正数")
	}
	switch c.Cache.TokenBackend {
	case TokenBackendMemory:
	case TokenBackendRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, "cache.redis_url: 使用 redis 令牌存储时必须配置地址")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.token_backend: 无效的令牌存储 '%s'，有效值: memory, redis", c.Cache.TokenBackend))
	}

	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		errs = append(errs, "upstream.base_url: 必须是 http(s) 地址")
	}
	if c.Upstream.AvailabilityTimeoutSec <= 0 || c.Upstream.PriceTimeoutSec <= 0 || c.Upstream.OrderTimeoutSec <= 0 {
		errs = append(errs, "upstream.*_timeout_sec: 超时必须为正数")
	}

	if c.Telegram.Enabled() && c.Telegram.ChatID == "" {
		errs = append(errs, "telegram.chat_id: 启用 Telegram 时必须配置 chat_id")
	}
	if c.WS.URL != "" && !strings.HasPrefix(c.WS.URL, "ws://") && !strings.HasPrefix(c.WS.URL, "wss://") {
		errs = append(errs, "ws.url: 必须是 ws(s) 地址")
	}
	if c.Output.BufferSize < 0 {
		errs = append(errs, "output.buffer_size: 缓冲区大小不能为负数")
	}

	seen := make(map[string]bool, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		if s.PlanCode == "" {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].plan_code: 型号不能为空", i))
			continue
		}
		if seen[s.PlanCode] {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].plan_code: 型号 '%s' 重复", i, s.PlanCode))
		}
		seen[s.PlanCode] = true
		if s.AutoOrderQuantity < 0 {
			errs = append(errs, fmt.Sprintf("subscriptions[%d].auto_order_quantity: 下单数量不能为负数", i))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
