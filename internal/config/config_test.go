// Package config 配置模块测试
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Property: Config Validation Correctness**

// TestConfigValidation_Subscriptions 测试订阅配置验证
func TestConfigValidation_Subscriptions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// 属性: 负的下单数量应验证失败
	properties.Property("下单数量为负数应验证失败", prop.ForAll(
		func(qty int) bool {
			cfg := createValidConfig()
			cfg.Subscriptions[0].AutoOrderQuantity = qty
			return cfg.Validate() != nil
		},
		gen.IntRange(-1000, -1),
	))

	// 属性: 非负的下单数量应验证通过
	properties.Property("下单数量非负应通过验证", prop.ForAll(
		func(qty int) bool {
			cfg := createValidConfig()
			cfg.Subscriptions[0].AutoOrderQuantity = qty
			return cfg.Validate() == nil
		},
		gen.IntRange(0, 1000),
	))

	// 属性: 重复型号应验证失败
	properties.Property("重复型号应验证失败", prop.ForAll(
		func(n int) bool {
			cfg := createValidConfig()
			for i := 0; i < n; i++ {
				cfg.Subscriptions = append(cfg.Subscriptions, SubscriptionConfig{PlanCode: cfg.Subscriptions[0].PlanCode})
			}
			return cfg.Validate() != nil
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_TokenBackend 测试令牌存储配置
func TestConfigValidation_TokenBackend(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("未知的令牌存储应验证失败", prop.ForAll(
		func(backend string) bool {
			cfg := createValidConfig()
			cfg.Cache.TokenBackend = "x" + backend
			return cfg.Validate() != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)

	cfg := createValidConfig()
	cfg.Cache.TokenBackend = TokenBackendRedis
	if err := cfg.Validate(); err == nil {
		t.Error("redis 存储缺少地址应验证失败")
	}
	cfg.Cache.RedisURL = "redis://localhost:6379/0"
	if err := cfg.Validate(); err != nil {
		t.Errorf("redis 配置应通过验证: %v", err)
	}
}

// TestConfigValidation_AggregatesErrors 测试多个错误一次性汇总
func TestConfigValidation_AggregatesErrors(t *testing.T) {
	cfg := createValidConfig()
	cfg.App.LogLevel = "verbose"
	cfg.Upstream.BaseURL = "ftp://x"
	cfg.Telegram.Token = "t"
	cfg.WS.URL = "http://not-ws"
	cfg.Subscriptions = append(cfg.Subscriptions, SubscriptionConfig{})

	err := cfg.Validate()
	if err == nil {
		t.Fatal("应返回错误")
	}
	for _, field := range []string{"app.log_level", "upstream.base_url", "telegram.chat_id", "ws.url", "subscriptions[1].plan_code"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("错误信息缺少 %s: %v", field, err)
		}
	}
}

// TestConfigValidation_HistoryLimit 测试历史条数上限
func TestConfigValidation_HistoryLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("历史条数在 1-100 之间应通过验证", prop.ForAll(
		func(n int) bool {
			cfg := createValidConfig()
			cfg.Monitor.HistoryLimit = n
			return cfg.Validate() == nil
		},
		gen.IntRange(1, MaxHistoryLimit),
	))

	properties.Property("历史条数超过 100 或为负数应验证失败", prop.ForAll(
		func(n int, negative bool) bool {
			cfg := createValidConfig()
			cfg.Monitor.HistoryLimit = MaxHistoryLimit + n
			if negative {
				cfg.Monitor.HistoryLimit = -n
			}
			err := cfg.Validate()
			return err != nil && strings.Contains(err.Error(), "monitor.history_limit")
		},
		gen.IntRange(1, 10000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_ValidConfig 测试有效配置
func TestConfigValidation_ValidConfig(t *testing.T) {
	cfg := createValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("有效配置验证失败: %v", err)
	}
}

// createValidConfig 创建一个有效的配置用于测试
func createValidConfig() *Config {
	cfg := &Config{
		Subscriptions: []SubscriptionConfig{{PlanCode: "24ska01", Datacenters: []string{"gra", "rbx"}}},
	}
	cfg.setDefaults()
	return cfg
}

func TestSubscriptionConfig_ToSubscription(t *testing.T) {
	off := false
	sub := SubscriptionConfig{PlanCode: "p", AutoOrder: true, AutoOrderQuantity: 3}.ToSubscription()
	if !sub.NotifyAvailable {
		t.Error("notify_available 缺省应为 true")
	}
	if !sub.AutoOrder || sub.AutoOrderQuantity != 3 {
		t.Errorf("自动下单配置丢失: %+v", sub)
	}
	sub = SubscriptionConfig{PlanCode: "p", NotifyAvailable: &off}.ToSubscription()
	if sub.NotifyAvailable {
		t.Error("显式关闭 notify_available 应生效")
	}
}

// TestLoad_ValidFile 测试从有效文件加载配置
func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-monitor
  log_level: debug

cache:
  token_backend: memory

upstream:
  base_url: http://127.0.0.1:19998
  api_key: from-file

telegram:
  token: bot-token
  chat_id: "-100123"

ws:
  url: ws://127.0.0.1:8080/ws

subscriptions:
  - plan_code: 24ska01
    datacenters: [gra, rbx]
    notify_unavailable: true
  - plan_code: 25skle01
    auto_order: true
    auto_order_quantity: 2
    server_name: KS-LE
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}
	t.Setenv(EnvAPIKey, "from-env")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-monitor" {
		t.Errorf("App.Name = %s, want test-monitor", cfg.App.Name)
	}
	if cfg.Upstream.APIKey != "from-env" {
		t.Errorf("环境变量应覆盖 api_key, got %s", cfg.Upstream.APIKey)
	}
	if cfg.Cache.PriceTTLHours != 72 || cfg.Cache.TokenTTLHours != 24 {
		t.Errorf("缓存默认值错误: %+v", cfg.Cache)
	}
	if cfg.Upstream.PriceTimeoutSec != 15 || cfg.Upstream.OrderTimeoutSec != 30 {
		t.Errorf("超时默认值错误: %+v", cfg.Upstream)
	}
	if len(cfg.Subscriptions) != 2 {
		t.Fatalf("len(Subscriptions) = %d, want 2", len(cfg.Subscriptions))
	}
	if got := fmt.Sprint(cfg.Subscriptions[0].Datacenters); got != "[gra rbx]" {
		t.Errorf("Datacenters = %s", got)
	}
}

// TestLoad_InvalidFile 测试加载无效文件
func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

// TestLoad_InvalidYAML 测试加载无效 YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	_, err := Load(tmpFile)
	if err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}
