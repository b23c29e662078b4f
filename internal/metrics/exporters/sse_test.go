package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/procmgr/internal/events"
	"github.com/smazurov/procmgr/internal/metrics"
	"github.com/smazurov/procmgr/internal/procstat"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesUsage(t *testing.T) {
	label := "sse-test-process"
	metrics.SetUsage(label, procstat.Usage{PID: 4242, CPUPercent: 3.256, RSSBytes: 1024, Threads: 4})
	defer metrics.DeleteUsage(label)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	select {
	case <-mock.published:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for usage publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		pue, ok := ev.(events.ProcessUsageEvent)
		if !ok || pue.Label != label {
			continue
		}
		found = true
		if pue.PID != 4242 {
			t.Errorf("PID = %d, want 4242", pue.PID)
		}
		if pue.CPUPercent != "3.26" {
			t.Errorf("CPUPercent = %q, want \"3.26\"", pue.CPUPercent)
		}
		if pue.RSSBytes != 1024 || pue.Threads != 4 {
			t.Errorf("unexpected event %+v", pue)
		}
		break
	}
	if !found {
		t.Error("expected ProcessUsageEvent for test process")
	}
}

func TestSSEExporterNoUsage(t *testing.T) {
	label := "sse-no-usage-test"
	metrics.DeleteUsage(label)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, 20*time.Millisecond)
	exporter.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if pue, ok := ev.(events.ProcessUsageEvent); ok && pue.Label == label {
			t.Error("expected no events for a process without usage")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	label := "sse-idempotent-test"
	metrics.SetUsage(label, procstat.Usage{PID: 1})
	defer metrics.DeleteUsage(label)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, 10*time.Millisecond)
	exporter.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	if got := len(mock.getEvents()); got != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", got, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	mock := newMockEventBus()
	exporter := NewSSEExporter(mock, 10*time.Millisecond)

	// Stop before start should not panic
	exporter.Stop()
}

func TestGetEventTypes(t *testing.T) {
	if _, ok := GetEventTypes()["process-usage"]; !ok {
		t.Error("expected process-usage event type")
	}
}
