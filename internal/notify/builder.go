package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"server-availability-monitor/internal/cache"
	"server-availability-monitor/internal/core/model"
	"server-availability-monitor/internal/util/timeutil"
)

// ButtonsPerRow 每行按钮数上限
const ButtonsPerRow = 2

var datacenterNames = map[string]string{
	"gra": "🇫🇷 法国·格拉沃利讷",
	"rbx": "🇫🇷 法国·鲁贝",
	"sbg": "🇫🇷 法国·斯特拉斯堡",
	"bhs": "🇨🇦 加拿大·博舍维尔",
	"syd": "🇦🇺 澳大利亚·悉尼",
	"sgp": "🇸🇬 新加坡",
	"ynm": "🇮🇳 印度·孟买",
	"waw": "🇵🇱 波兰·华沙",
	"fra": "🇩🇪 德国·法兰克福",
	"lon": "🇬🇧 英国·伦敦",
	"par": "🇫🇷 法国·巴黎",
	"eri": "🇮🇹 意大利·埃里切",
	"lim": "🇵🇱 波兰·利马诺瓦",
	"vin": "🇺🇸 美国·弗吉尼亚",
	"hil": "🇺🇸 美国·俄勒冈",
}

var datacenterShort = map[string]string{
	"gra": "🇫🇷 Gra",
	"rbx": "🇫🇷 Rbx",
	"sbg": "🇫🇷 Sbg",
	"bhs": "🇨🇦 Bhs",
	"syd": "🇦🇺 Syd",
	"sgp": "🇸🇬 Sgp",
	"ynm": "🇮🇳 Mum",
	"waw": "🇵🇱 Waw",
	"fra": "🇩🇪 Fra",
	"lon": "🇬🇧 Lon",
	"par": "🇫🇷 Par",
	"eri": "🇮🇹 Eri",
	"lim": "🇵🇱 Lim",
	"vin": "🇺🇸 Vin",
	"hil": "🇺🇸 Hil",
}

// DatacenterName 数据中心展示名称，未知时返回大写代码
func DatacenterName(dc string) string {
	if name, ok := datacenterNames[strings.ToLower(dc)]; ok {
		return name
	}
	return strings.ToUpper(dc)
}

// DatacenterShortName 按钮使用的短名称
func DatacenterShortName(dc string) string {
	if name, ok := datacenterShort[strings.ToLower(dc)]; ok {
		return name
	}
	return strings.ToUpper(dc)
}

// AvailableAlert 一个配置的汇总有货提醒
type AvailableAlert struct {
	PlanCode   string
	ServerName string
	// Config 配置描述，扁平数据为 nil
	Config *model.ConfigInfo
	// Datacenters 有货机房，按展示顺序
	Datacenters []string
	// Price 报价，nil 表示不展示价格
	Price *model.Quote
}

// UnavailableAlert 单个机房的无货提醒
type UnavailableAlert struct {
	PlanCode   string
	ServerName string
	Datacenter string
	Config     *model.ConfigInfo
	// Duration 有货持续时长，nil 表示找不到有货记录
	Duration *time.Duration
}

// Builder 通知构建器
// 有货提醒为每个机房签发一个令牌，按钮只携带令牌。
type Builder struct {
	tokens cache.TokenStore
	now    func() time.Time
	logger *zap.Logger
}

// NewBuilder 创建通知构建器
// 参数 tokens: 令牌存储，nil 时不生成按钮
// 参数 now: 时间源，nil 时使用 timeutil.Now
func NewBuilder(tokens cache.TokenStore, now func() time.Time, logger *zap.Logger) *Builder {
	if now == nil {
		now = timeutil.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{tokens: tokens, now: now, logger: logger.Named("notify")}
}

// Available 构建汇总有货提醒
// 签发令牌失败的机房不生成按钮，消息正文不受影响。
func (b *Builder) Available(ctx context.Context, a AvailableAlert) Message {
	var sb strings.Builder
	sb.WriteString("🎉 服务器上架通知！\n\n")
	if a.ServerName != "" {
		fmt.Fprintf(&sb, "服务器: %s\n", a.ServerName)
	}
	fmt.Fprintf(&sb, "型号: %s\n", a.PlanCode)
	writeConfig(&sb, a.Config)
	if a.Price != nil {
		fmt.Fprintf(&sb, "\n💰 价格: %s\n", a.Price.Text())
	}

	fmt.Fprintf(&sb, "\n✅ 有货的机房 (%d个):\n", len(a.Datacenters))
	for _, dc := range a.Datacenters {
		fmt.Fprintf(&sb, "  • %s (%s)\n", DatacenterName(dc), strings.ToUpper(dc))
	}
	fmt.Fprintf(&sb, "\n⏰ 时间: %s", timeutil.Format(b.now()))

	kb := b.keyboard(ctx, a)
	if len(kb) > 0 {
		sb.WriteString("\n\n💡 点击下方按钮可直接下单对应机房！")
	}
	return Message{Text: sb.String(), Keyboard: kb}
}

func (b *Builder) keyboard(ctx context.Context, a AvailableAlert) Keyboard {
	if b.tokens == nil {
		return nil
	}
	var options []string
	if a.Config != nil {
		options = a.Config.Options
	}

	var kb Keyboard
	var row []Button
	for _, dc := range a.Datacenters {
		token, err := b.tokens.Issue(ctx, model.OrderDescriptor{
			PlanCode:   a.PlanCode,
			Datacenter: dc,
			Options:    append([]string(nil), options...),
			Config:     a.Config,
			CreatedAt:  b.now(),
		})
		if err != nil {
			b.logger.Warn("签发令牌失败，跳过按钮", zap.String("plan", a.PlanCode), zap.String("dc", dc), zap.Error(err))
			continue
		}
		data, err := EncodeCallback(token)
		if err != nil {
			b.logger.Warn("回调数据异常", zap.String("token", token), zap.Error(err))
			continue
		}
		row = append(row, Button{Text: DatacenterShortName(dc) + " 一键下单", CallbackData: data})
		if len(row) == ButtonsPerRow {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}

// Unavailable 构建单个机房的无货提醒
func (b *Builder) Unavailable(a UnavailableAlert) Message {
	var sb strings.Builder
	sb.WriteString("📦 服务器下架通知\n\n")
	if a.ServerName != "" {
		fmt.Fprintf(&sb, "服务器: %s\n", a.ServerName)
	}
	fmt.Fprintf(&sb, "型号: %s\n", a.PlanCode)
	writeConfig(&sb, a.Config)
	fmt.Fprintf(&sb, "\n数据中心: %s\n", a.Datacenter)
	sb.WriteString("状态: 已无货\n")
	fmt.Fprintf(&sb, "⏰ 时间: %s", timeutil.Format(b.now()))
	if a.Duration != nil {
		fmt.Fprintf(&sb, "\n⏱️ 历时: %s", timeutil.FormatDuration(*a.Duration))
	}
	return Message{Text: sb.String()}
}

// NewServer 构建新品上架提醒，缺失字段显示 N/A
func (b *Builder) NewServer(s model.ServerInfo) Message {
	na := func(v string) string {
		if v == "" {
			return "N/A"
		}
		return v
	}
	var sb strings.Builder
	sb.WriteString("🆕 新服务器上架通知！\n\n")
	fmt.Fprintf(&sb, "型号: %s\n", na(s.PlanCode))
	fmt.Fprintf(&sb, "名称: %s\n", na(s.Name))
	fmt.Fprintf(&sb, "CPU: %s\n", na(s.CPU))
	fmt.Fprintf(&sb, "内存: %s\n", na(s.Memory))
	fmt.Fprintf(&sb, "存储: %s\n", na(s.Storage))
	fmt.Fprintf(&sb, "带宽: %s\n", na(s.Bandwidth))
	fmt.Fprintf(&sb, "时间: %s\n\n", timeutil.Format(b.now()))
	sb.WriteString("💡 快去查看详情！")
	return Message{Text: sb.String()}
}

func writeConfig(sb *strings.Builder, c *model.ConfigInfo) {
	if c == nil {
		return
	}
	fmt.Fprintf(sb, "配置: %s\n├─ 内存: %s\n└─ 存储: %s\n", c.Display, c.Memory, c.Storage)
}
