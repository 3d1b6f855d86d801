package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reminder_engine/internal/domain/reminder"
	"reminder_engine/internal/infra/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TickObserved(scheduler.TickDispatched)
	m.TickObserved(scheduler.TickCoalesced)
	m.TickObserved(scheduler.TickCoalesced)
	m.SweepObserved("ok", 120*time.Millisecond)
	m.ScheduleError(reminder.KindMonthly)
	m.BatchSize(3)

	if got := testutil.ToFloat64(m.ticks.WithLabelValues("coalesced")); got != 2 {
		t.Fatalf("coalesced ticks = %v", got)
	}
	if got := testutil.ToFloat64(m.sweeps.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok sweeps = %v", got)
	}
	if got := testutil.ToFloat64(m.scheduleErrors.WithLabelValues("MONTHLY")); got != 1 {
		t.Fatalf("monthly schedule errors = %v", got)
	}
	n, err := testutil.GatherAndCount(reg, "reminder_batch_recipients", "reminder_sweep_duration_seconds")
	if err != nil || n != 2 {
		t.Fatalf("histograms gathered = %d, %v", n, err)
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	New(reg).TickObserved(scheduler.TickDispatched)
	var ready atomic.Bool
	srv := httptest.NewServer(NewRouter(reg, ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusServiceUnavailable {
		t.Fatalf("/healthz before ready = %d", code)
	}
	ready.Store(true)
	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	code, body := get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, `reminder_ticks_total{result="dispatched"} 1`) {
		t.Fatalf("/metrics = %d\n%s", code, body)
	}
}
