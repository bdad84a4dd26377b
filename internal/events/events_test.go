package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-availability-monitor/internal/core/model"
)

func sampleEvent(plan, dc string) Event {
	sub := &model.Subscription{PlanCode: plan, ServerName: "KS-A"}
	return NewTransition(sub, model.HistoryEntry{
		Timestamp:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Datacenter: dc,
		Status:     "1H",
		ChangeType: model.ChangeAvailable,
		OldStatus:  model.StatusUnavailable,
		Config:     &model.ConfigInfo{Memory: "32GB", Storage: "2x1TB", Display: "32GB + 2x1TB"},
	}, time.Date(2026, 5, 1, 12, 0, 1, 0, time.UTC))
}

// **Property: JSONL 输出完整性**

func TestJSONLSink_OutputCompleteness_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("写入 n 条事件后文件恰好有 n 行且字段完整", prop.ForAll(
		func(n int, dc string) bool {
			path := filepath.Join(t.TempDir(), "out", "events.jsonl")
			s, err := NewJSONLSink(path, 4, nil)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				if err := s.Publish(context.Background(), sampleEvent("p", dc)); err != nil {
					return false
				}
			}
			if err := s.Close(); err != nil {
				return false
			}

			f, err := os.Open(path)
			if err != nil {
				return false
			}
			defer f.Close()

			lines := 0
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				var m map[string]any
				if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
					return false
				}
				for _, k := range []string{"type", "planCode", "entry", "publishedAt"} {
					if _, ok := m[k]; !ok {
						return false
					}
				}
				lines++
			}
			return lines == n
		},
		gen.IntRange(0, 50),
		gen.OneConstOf("gra", "rbx", "sbg"),
	))

	properties.TestingRun(t)
}

func TestJSONLSink_FlushAndClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s, err := NewJSONLSink(path, 0, nil)
	require.NoError(t, err)

	require.NoError(t, s.Publish(context.Background(), sampleEvent("p", "gra")))
	require.NoError(t, s.Flush())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"planCode":"p"`)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Publish(context.Background(), sampleEvent("p", "gra")), ErrSinkClosed)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_KeyedByPlan(t *testing.T) {
	fw := &fakeWriter{}
	k := &KafkaSink{w: fw}
	require.NoError(t, k.Publish(context.Background(), sampleEvent("24ska01", "gra")))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "24ska01", string(fw.msgs[0].Key))
	assert.Equal(t, TypeTransition, string(fw.msgs[0].Headers[0].Value))

	var ev Event
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &ev))
	assert.Equal(t, "gra", ev.Entry.Datacenter)

	fw.err = errors.New("broker down")
	assert.Error(t, k.Publish(context.Background(), sampleEvent("24ska01", "gra")))
	require.NoError(t, k.Close())
	assert.True(t, fw.closed)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &fakeWriter{}
	bad := &fakeWriter{err: errors.New("down")}
	m := Multi{&KafkaSink{w: ok}, &KafkaSink{w: bad}, Nop{}}
	assert.Error(t, m.Publish(context.Background(), sampleEvent("p", "gra")))
	assert.Len(t, ok.msgs, 1, "一个失败不影响其它输出")
	assert.NoError(t, m.Close())
}
