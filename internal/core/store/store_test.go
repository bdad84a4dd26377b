package store

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-availability-monitor/internal/core/model"
)

func TestStore_AddDuplicateKeepsState(t *testing.T) {
	s := New(0, nil)
	require.True(t, s.Add(model.Subscription{PlanCode: "24ska01", NotifyAvailable: true}))

	s.MergeStatus("24ska01", map[string]string{"gra|cfgA": "available"})
	s.AppendHistory("24ska01", model.HistoryEntry{Datacenter: "gra", ChangeType: model.ChangeAvailable})

	created := s.Add(model.Subscription{
		PlanCode:          "24ska01",
		Datacenters:       []string{"rbx"},
		NotifyUnavailable: true,
		AutoOrder:         true,
		AutoOrderQuantity: 2,
		ServerName:        "KS-A",
	})
	require.False(t, created)

	sub, ok := s.Get("24ska01")
	require.True(t, ok)
	assert.Equal(t, []string{"rbx"}, sub.Datacenters)
	assert.False(t, sub.NotifyAvailable)
	assert.True(t, sub.NotifyUnavailable)
	assert.True(t, sub.AutoOrder)
	assert.Equal(t, 2, sub.AutoOrderQuantity)
	assert.Equal(t, "KS-A", sub.ServerName)
	assert.Equal(t, "available", sub.LastStatus["gra|cfgA"], "重复添加不能重置状态")
	assert.Len(t, sub.History, 1)
	assert.Equal(t, 1, s.Len())
}

func TestStore_RestoreSeedsStatusAndHistory(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(0, nil)
	s.Restore(model.Subscription{
		PlanCode:   "24ska01",
		CreatedAt:  created,
		LastStatus: map[string]string{"gra": "1H-low"},
		History:    []model.HistoryEntry{{Datacenter: "gra", ChangeType: model.ChangeAvailable}},
	})
	sub, _ := s.Get("24ska01")
	assert.Equal(t, "1H-low", sub.LastStatus["gra"])
	assert.Len(t, sub.History, 1)
	assert.Equal(t, created, sub.CreatedAt)

	s.Restore(model.Subscription{PlanCode: "24ska01", LastStatus: map[string]string{"rbx": "unavailable"}})
	sub, _ = s.Get("24ska01")
	assert.Equal(t, map[string]string{"rbx": "unavailable"}, sub.LastStatus, "恢复整体替换")
	assert.Empty(t, sub.History)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AddIgnoresPersistedState(t *testing.T) {
	s := New(0, nil)
	s.Add(model.Subscription{PlanCode: "p", LastStatus: map[string]string{"gra": "1H"}})
	sub, _ := s.Get("p")
	assert.Empty(t, sub.LastStatus)
	assert.False(t, sub.CreatedAt.IsZero())
}

func TestStore_ViewsAreCopies(t *testing.T) {
	s := New(0, nil)
	s.Add(model.Subscription{PlanCode: "p"})
	sub, _ := s.Get("p")
	sub.LastStatus["gra"] = "available"

	again, _ := s.Get("p")
	assert.Empty(t, again.LastStatus)
}

func TestStore_PinSkipsUnavailable(t *testing.T) {
	s := New(0, nil)
	s.Add(model.Subscription{PlanCode: "p"})
	s.PinStatus("p", map[string]string{"gra|c": "available", "rbx|c": model.StatusUnavailable})

	sub, _ := s.Get("p")
	assert.Equal(t, map[string]string{"gra|c": "available"}, sub.LastStatus)
}

func TestStore_HistoryBounded(t *testing.T) {
	s := New(0, nil)
	s.Add(model.Subscription{PlanCode: "p"})
	for i := 0; i < 101; i++ {
		s.AppendHistory("p", model.HistoryEntry{Status: strconv.Itoa(i)})
	}
	sub, _ := s.Get("p")
	require.Len(t, sub.History, 100)
	assert.Equal(t, "1", sub.History[0].Status)
	assert.Equal(t, "100", sub.History[99].Status)
}

func TestStore_RemoveClearOrder(t *testing.T) {
	s := New(0, nil)
	for _, pc := range []string{"a", "b", "c"} {
		s.Add(model.Subscription{PlanCode: pc})
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.PlanCodes())
	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.PlanCodes())
	assert.False(t, s.MergeStatus("b", map[string]string{"x": "y"}))
	assert.Equal(t, 2, s.Clear())
	assert.Empty(t, s.List())
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New(0, nil)
	s.Add(model.Subscription{PlanCode: "p"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "dc" + strconv.Itoa(i) + "|cfg"
			s.PinStatus("p", map[string]string{key: "available"})
			s.AppendHistory("p", model.HistoryEntry{Datacenter: key})
			_ = s.List()
		}(i)
	}
	wg.Wait()

	sub, _ := s.Get("p")
	assert.Len(t, sub.LastStatus, 20)
	assert.Len(t, sub.History, 20)
}

func TestStore_StateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "subscriptions.json")

	n, err := New(0, nil).LoadFile(path)
	require.NoError(t, err)
	assert.Zero(t, n, "状态文件不存在时不恢复")

	s := New(0, nil)
	s.Add(model.Subscription{PlanCode: "24ska01", NotifyAvailable: true, AutoOrder: true})
	s.MergeStatus("24ska01", map[string]string{"gra|cfgA": "1H"})
	s.AppendHistory("24ska01", model.HistoryEntry{Datacenter: "gra", Status: "1H", ChangeType: model.ChangeAvailable})
	require.NoError(t, s.SaveFile(path))

	restored := New(0, nil)
	n, err = restored.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 配置文件中的同名订阅只更新开关，不覆盖恢复的状态
	assert.False(t, restored.Add(model.Subscription{PlanCode: "24ska01", NotifyUnavailable: true}))
	sub, ok := restored.Get("24ska01")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"gra|cfgA": "1H"}, sub.LastStatus)
	require.Len(t, sub.History, 1)
	assert.Equal(t, model.ChangeAvailable, sub.History[0].ChangeType)
	assert.True(t, sub.NotifyUnavailable)
	assert.False(t, sub.AutoOrder)
}

func TestStore_LoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := New(0, nil).LoadFile(path)
	assert.Error(t, err)
}
