package monitor

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"server-availability-monitor/internal/core/model"
)

// CheckNewServers 对比服务器目录与已知型号基线，为新出现的型号发送上架提醒
// 第一次调用（或基线为空时）只建立基线，不发提醒。
// 发现新型号后基线整体替换为本次目录；没有新型号时基线不变。
// 返回: 新出现的型号（按型号排序）
func (m *Monitor) CheckNewServers(ctx context.Context, servers []model.ServerInfo) []model.ServerInfo {
	current := make(map[string]model.ServerInfo, len(servers))
	for _, s := range servers {
		if s.PlanCode != "" {
			current[s.PlanCode] = s
		}
	}

	m.knownMu.Lock()
	if len(m.known) == 0 {
		m.known = make(map[string]struct{}, len(current))
		for pc := range current {
			m.known[pc] = struct{}{}
		}
		m.knownMu.Unlock()
		m.logger.Info("初始化已知服务器列表", zap.Int("servers", len(current)))
		return nil
	}

	var fresh []model.ServerInfo
	for pc, s := range current {
		if _, ok := m.known[pc]; !ok {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) > 0 {
		m.known = make(map[string]struct{}, len(current))
		for pc := range current {
			m.known[pc] = struct{}{}
		}
	}
	m.knownMu.Unlock()

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].PlanCode < fresh[j].PlanCode })
	if len(fresh) == 0 || m.deps.Sender == nil {
		return fresh
	}

	for _, s := range fresh {
		if err := m.deps.Sender.Send(ctx, m.deps.Builder.NewServer(s).Text); err != nil {
			m.logger.Warn("发送新服务器提醒失败", zap.String("plan", s.PlanCode), zap.Error(err))
			continue
		}
		m.logger.Info("发送新服务器提醒", zap.String("plan", s.PlanCode))
	}
	m.logger.Info("检测到新服务器上架", zap.Int("count", len(fresh)))
	return fresh
}

func (m *Monitor) knownServerCount() int {
	m.knownMu.Lock()
	defer m.knownMu.Unlock()
	return len(m.known)
}
