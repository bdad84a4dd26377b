// Package timeutil 提供时间相关的工具函数。
// 所有面向用户的时间展示与历时计算都使用固定的北京时间（Asia/Shanghai）。
package timeutil

import (
	"fmt"
	"time"
)

// DisplayLayout 消息中时间的展示格式
const DisplayLayout = "2006-01-02 15:04:05"

var location = loadLocation()

// loadLocation 加载 Asia/Shanghai 时区
// 若系统缺少 tzdata，退化为固定 UTC+8。
func loadLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Location 返回展示使用的时区
func Location() *time.Location {
	return location
}

// Now 返回北京时间的当前时间
func Now() time.Time {
	return time.Now().In(location)
}

// Format 按展示格式输出北京时间
// 参数 t: 任意时区的时间
func Format(t time.Time) string {
	return t.In(location).Format(DisplayLayout)
}

// Elapsed 计算 start 到 end 的时长，截断到秒，负值视为 0
func Elapsed(start, end time.Time) time.Duration {
	d := end.Sub(start).Truncate(time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// FormatDuration 将时长格式化为中文文本
// 例如: 1天2小时3分4秒、5分6秒、7秒
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	days := total / 86400
	rem := total % 86400
	hours := rem / 3600
	minutes := (rem % 3600) / 60
	seconds := rem % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%d天%d小时%d分%d秒", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%d小时%d分%d秒", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%d分%d秒", minutes, seconds)
	default:
		return fmt.Sprintf("%d秒", seconds)
	}
}

// SleepChunked 以 step 为粒度分段休眠，stop 返回 true 时提前结束
// 返回: 是否因 stop 提前结束
func SleepChunked(total, step time.Duration, stop func() bool) bool {
	if step <= 0 {
		step = time.Second
	}
	for waited := time.Duration(0); waited < total; waited += step {
		if stop() {
			return true
		}
		chunk := step
		if remain := total - waited; remain < chunk {
			chunk = remain
		}
		time.Sleep(chunk)
	}
	return stop()
}
