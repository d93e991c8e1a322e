package infra

import (
	"sync"
	"testing"
)

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent()
	m.RecordEvent()
	m.RecordOrdersSynced(5)
	m.RecordTradesClustered(3)
	m.RecordSyncRun()
	m.RecordSyncFailure()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	snap := m.Snapshot()
	if snap.EventsProcessed != 2 {
		t.Errorf("EventsProcessed = %d, want 2", snap.EventsProcessed)
	}
	if snap.OrdersSynced != 5 {
		t.Errorf("OrdersSynced = %d, want 5", snap.OrdersSynced)
	}
	if snap.TradesClustered != 3 {
		t.Errorf("TradesClustered = %d, want 3", snap.TradesClustered)
	}
	if snap.SyncRuns != 1 || snap.SyncFailures != 1 {
		t.Errorf("SyncRuns/SyncFailures = %d/%d, want 1/1", snap.SyncRuns, snap.SyncFailures)
	}
	if snap.CacheHits != 1 || snap.CacheMisses != 2 {
		t.Errorf("CacheHits/CacheMisses = %d/%d, want 1/2", snap.CacheHits, snap.CacheMisses)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := &Metrics{}

	m.SetStreamConnected(true)
	m.SetCircuitState(true)

	snap := m.Snapshot()
	if !snap.StreamConnected {
		t.Error("expected stream connected gauge set")
	}
	if !snap.CircuitOpen {
		t.Error("expected circuit open gauge set")
	}

	m.SetStreamConnected(false)
	m.SetCircuitState(false)

	snap = m.Snapshot()
	if snap.StreamConnected || snap.CircuitOpen {
		t.Error("expected gauges cleared")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}
	m.RecordEvent()
	m.RecordSyncRun()
	m.SetStreamConnected(true)

	m.Reset()

	snap := m.Snapshot()
	if snap.EventsProcessed != 0 || snap.SyncRuns != 0 || snap.StreamConnected {
		t.Errorf("expected zeroed snapshot after reset, got %+v", snap)
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordEvent()
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().EventsProcessed; got != 1000 {
		t.Errorf("EventsProcessed = %d, want 1000", got)
	}
}
