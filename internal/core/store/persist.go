package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"server-availability-monitor/internal/core/model"
)

// stateFile 状态文件格式
type stateFile struct {
	Subscriptions []model.Subscription `json:"subscriptions"`
}

// SaveFile 将所有订阅（含 lastStatus 与 history）写入状态文件
// 先写临时文件再重命名，写入中途退出不会留下半个文件。
func (s *Store) SaveFile(path string) error {
	data, err := json.MarshalIndent(stateFile{Subscriptions: s.List()}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化订阅状态失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("替换状态文件失败: %w", err)
	}
	return nil
}

// LoadFile 从状态文件恢复订阅，文件不存在时不做任何事
// 返回: 恢复的订阅数
func (s *Store) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取状态文件失败: %w", err)
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return 0, fmt.Errorf("解析状态文件失败: %w", err)
	}
	n := 0
	for _, sub := range state.Subscriptions {
		if sub.PlanCode == "" {
			continue
		}
		s.Restore(sub)
		n++
	}
	return n, nil
}
