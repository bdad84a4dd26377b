// Package history 维护每个订阅的状态变化历史（有界环形缓冲），
// 并基于历史计算“有货持续了多久”。
package history

import (
	"time"

	"server-availability-monitor/internal/core/model"
	"server-availability-monitor/internal/util/timeutil"
)

// DefaultLimit 每个订阅保留的历史条数
const DefaultLimit = 100

// Log 有界历史记录（环形缓冲）
// 写满后覆盖最旧的条目。非并发安全，由 store 加锁保护。
type Log struct {
	size int
	buf  []model.HistoryEntry
	pos  int
	full bool
}

// NewLog 创建历史记录
// 参数 size: 最大条数，<=0 时使用 DefaultLimit
func NewLog(size int) *Log {
	if size <= 0 {
		size = DefaultLimit
	}
	return &Log{size: size, buf: make([]model.HistoryEntry, 0, size)}
}

// FromEntries 用已有记录恢复历史，超出容量时仅保留最新的条目
func FromEntries(size int, entries []model.HistoryEntry) *Log {
	l := NewLog(size)
	if len(entries) > l.size {
		entries = entries[len(entries)-l.size:]
	}
	for _, e := range entries {
		l.Append(e)
	}
	return l
}

// Append 追加一条记录，满时丢弃最旧的一条
func (l *Log) Append(e model.HistoryEntry) {
	if !l.full {
		l.buf = append(l.buf, e)
		if len(l.buf) == l.size {
			l.full = true
			l.pos = 0
		}
		return
	}

	l.buf[l.pos] = e
	l.pos++
	if l.pos >= l.size {
		l.pos = 0
	}
}

// Len 当前条数
func (l *Log) Len() int {
	return len(l.buf)
}

// Entries 按时间顺序（旧 -> 新）返回记录副本
func (l *Log) Entries() []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(l.buf))
	if !l.full {
		return append(out, l.buf...)
	}
	out = append(out, l.buf[l.pos:]...)
	return append(out, l.buf[:l.pos]...)
}

// LastAvailable 从新到旧查找指定机房最近一次 available 记录
// display 非空时，带配置描述且 display 不同的记录会被跳过；
// 找到第一条匹配即停止。
func LastAvailable(entries []model.HistoryEntry, dc, display string) (model.HistoryEntry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Datacenter != dc || e.ChangeType != model.ChangeAvailable {
			continue
		}
		if display != "" && e.Config != nil && e.Config.Display != display {
			continue
		}
		return e, true
	}
	return model.HistoryEntry{}, false
}

// AvailableFor 计算到 now 为止的有货持续时长
// 返回: 时长（秒粒度）与是否找到匹配的有货记录
func AvailableFor(entries []model.HistoryEntry, dc, display string, now time.Time) (time.Duration, bool) {
	e, ok := LastAvailable(entries, dc, display)
	if !ok {
		return 0, false
	}
	return timeutil.Elapsed(e.Timestamp, now), true
}
