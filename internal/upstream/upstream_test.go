package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-availability-monitor/internal/core/model"
)

func TestAvailability_ConfiguredSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/internal/monitor/availability", r.URL.Path)
		assert.Equal(t, "24ska01", r.URL.Query().Get("plan_code"))
		_, _ = io.WriteString(w, `{
			"cfgB": {"datacenters": {"gra": "unavailable"}, "memory": "64GB", "storage": "2x2TB", "options": ["ram-64g"]},
			"cfgA": {"datacenters": {"gra": "1H", "rbx": "unavailable"}, "memory": "32GB", "storage": "2x1TB", "options": ["ram-32g", "disk-2x1t"]}
		}`)
	}))
	defer srv.Close()

	snap, err := NewAvailabilityClient(srv.URL, "", 0).Availability(context.Background(), "24ska01")
	require.NoError(t, err)
	require.Len(t, snap, 2)

	first, ok := snap[0].(model.ConfiguredStatus)
	require.True(t, ok)
	assert.Equal(t, "cfgA", first.ConfigID, "条目按键排序")
	assert.Equal(t, "32GB + 2x1TB", first.Info().Display)
	assert.Equal(t, "1H", first.Datacenters["gra"])
	assert.Equal(t, map[string]string{
		"gra|cfgA": "1H", "rbx|cfgA": "unavailable", "gra|cfgB": "unavailable",
	}, snap.Statuses())
}

func TestAvailability_FlatSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"rbx": "unavailable", "gra": "1H-low"}`)
	}))
	defer srv.Close()

	snap, err := NewAvailabilityClient(srv.URL, "", 0).Availability(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, model.Snapshot{
		model.FlatStatus{Datacenter: "gra", Status: "1H-low"},
		model.FlatStatus{Datacenter: "rbx", Status: "unavailable"},
	}, snap)
}

func TestAvailability_EmptyAndErrors(t *testing.T) {
	for name, body := range map[string]string{"空对象": `{}`, "null": `null`} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()
			_, err := NewAvailabilityClient(srv.URL, "", 0).Availability(context.Background(), "p")
			assert.ErrorIs(t, err, ErrSnapshotUnavailable)
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := NewAvailabilityClient(srv.URL, "", 0).Availability(context.Background(), "p")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestQueryPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req priceRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Datacenter == "bhs" {
			_, _ = io.WriteString(w, `{"success": false, "error": "not sold here"}`)
			return
		}
		assert.Equal(t, "24ska01", req.PlanCode)
		assert.Equal(t, []string{"ram-32g"}, req.Options)
		_, _ = io.WriteString(w, `{"success": true, "price": {"prices": {"withTax": 12.99, "currencyCode": "EUR"}}}`)
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "", 0)
	q, err := c.QueryPrice(context.Background(), "24ska01", "gra", []string{"ram-32g"})
	require.NoError(t, err)
	assert.Equal(t, model.Quote{Amount: 12.99, Currency: "EUR"}, q)
	assert.Equal(t, "€12.99/月", q.Text())

	_, err = c.QueryPrice(context.Background(), "24ska01", "bhs", []string{"ram-32g"})
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestSubmitOrder(t *testing.T) {
	var got model.OrderRequest
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/config-sniper/quick-order", r.URL.Path)
		key = r.Header.Get("X-API-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.Datacenter == "bhs" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_, _ = io.WriteString(w, `{"success": true}`)
	}))
	defer srv.Close()

	c := NewOrderClient(srv.URL, "secret", 0)
	req := model.OrderRequest{PlanCode: "24ska01", Datacenter: "gra", Options: []string{"ram-32g"}, SkipPriceCheck: true, SkipDuplicateCheck: true}
	require.NoError(t, c.SubmitOrder(context.Background(), req))
	assert.Equal(t, "secret", key)
	assert.Equal(t, req, got)

	req.Datacenter = "bhs"
	assert.Error(t, c.SubmitOrder(context.Background(), req))
}
