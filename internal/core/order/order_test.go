package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-availability-monitor/internal/cache"
	"server-availability-monitor/internal/core/model"
)

type fakeOrders struct {
	mu       sync.Mutex
	reqs     []model.OrderRequest
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	failDC   string
	// pinned 收到请求时 pin 是否已执行
	pinned *atomic.Bool
	sawPin []bool
}

func (f *fakeOrders) SubmitOrder(_ context.Context, req model.OrderRequest) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	if f.pinned != nil {
		f.sawPin = append(f.sawPin, f.pinned.Load())
	}
	f.mu.Unlock()

	if req.Datacenter == f.failDC {
		return errors.New("下单服务拒绝")
	}
	return nil
}

type fakePrices struct {
	calls atomic.Int32
	dcs   []string
	mu    sync.Mutex
	fail  bool
}

func (f *fakePrices) QueryPrice(_ context.Context, _ string, dc string, _ []string) (model.Quote, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.dcs = append(f.dcs, dc)
	f.mu.Unlock()
	if f.fail {
		return model.Quote{}, errors.New("price down")
	}
	return model.Quote{Amount: 20, Currency: "EUR"}, nil
}

func TestRun_SingleValidationThenSkipPriceCheck(t *testing.T) {
	orders := &fakeOrders{}
	prices := &fakePrices{}
	pc := cache.NewPriceCache(0, nil)
	o := NewOrchestrator(orders, prices, pc, nil)

	s := o.Run(context.Background(), Batch{PlanCode: "24ska01", Datacenters: []string{"gra", "rbx", "sbg"}, Options: []string{"ram-32g"}}, nil)

	assert.EqualValues(t, 1, prices.calls.Load(), "同一配置只核验一次")
	assert.Equal(t, []string{"gra"}, prices.dcs, "使用第一个有货机房核验")
	assert.True(t, pc.IsValid("24ska01"))
	assert.Equal(t, Summary{Total: 3, Succeeded: 3, Validated: true}, s)

	require.Len(t, orders.reqs, 3)
	for _, r := range orders.reqs {
		assert.True(t, r.SkipPriceCheck)
		assert.False(t, r.SkipDuplicateCheck, "数量为 0 时不绕过重复下单限制")
		assert.Equal(t, []string{"ram-32g"}, r.Options)
	}
}

func TestRun_ValidSetSkipsValidationAfterQuoteExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pc := cache.NewPriceCache(0, func() time.Time { return now })
	pc.Put("24ska01", nil, model.Quote{Amount: 1})
	now = now.Add(4 * 24 * time.Hour)
	_, ok := pc.Get("24ska01", nil)
	require.False(t, ok, "报价已过期")

	prices := &fakePrices{}
	orders := &fakeOrders{}
	s := NewOrchestrator(orders, prices, pc, nil).Run(context.Background(), Batch{PlanCode: "24ska01", Datacenters: []string{"gra"}}, nil)
	assert.Zero(t, prices.calls.Load())
	assert.True(t, s.Validated)
	assert.True(t, orders.reqs[0].SkipPriceCheck)
}

func TestRun_ValidationFailureStillOrders(t *testing.T) {
	orders := &fakeOrders{}
	pc := cache.NewPriceCache(0, nil)
	s := NewOrchestrator(orders, &fakePrices{fail: true}, pc, nil).Run(context.Background(), Batch{PlanCode: "p", Datacenters: []string{"gra", "rbx"}}, nil)
	assert.False(t, pc.IsValid("p"))
	assert.Equal(t, 2, s.Total)
	for _, r := range orders.reqs {
		assert.False(t, r.SkipPriceCheck)
	}
}

func TestRun_QuantityAndBoundedPool(t *testing.T) {
	orders := &fakeOrders{delay: 10 * time.Millisecond, failDC: "rbx"}
	pc := cache.NewPriceCache(0, nil)
	pc.MarkValid("p")
	s := NewOrchestrator(orders, &fakePrices{}, pc, nil).Run(context.Background(), Batch{
		PlanCode:    "p",
		Datacenters: []string{"gra", "rbx", "sbg", "bhs"},
		Quantity:    4,
	}, nil)

	assert.Equal(t, 16, s.Total)
	assert.Equal(t, 12, s.Succeeded)
	assert.Equal(t, 4, s.Failed, "失败不影响同批次其它请求")
	assert.LessOrEqual(t, orders.peak.Load(), int32(MaxWorkers))
	for _, r := range orders.reqs {
		assert.True(t, r.SkipDuplicateCheck)
	}
}

func TestRun_PinBeforeResults(t *testing.T) {
	var pinned atomic.Bool
	orders := &fakeOrders{delay: 50 * time.Millisecond, pinned: &pinned, failDC: "gra"}
	pc := cache.NewPriceCache(0, nil)
	pc.MarkValid("p")

	pins := 0
	NewOrchestrator(orders, &fakePrices{}, pc, nil).Run(context.Background(), Batch{PlanCode: "p", Datacenters: []string{"gra"}}, func() {
		pins++
		pinned.Store(true)
	})
	assert.Equal(t, 1, pins)
	require.Len(t, orders.sawPin, 1)
	assert.True(t, orders.sawPin[0], "pin 不等待下单结果")
}

func TestRun_EmptyBatch(t *testing.T) {
	called := false
	s := NewOrchestrator(&fakeOrders{}, &fakePrices{}, cache.NewPriceCache(0, nil), nil).Run(context.Background(), Batch{PlanCode: "p"}, func() { called = true })
	assert.Zero(t, s.Total)
	assert.False(t, called)
}
