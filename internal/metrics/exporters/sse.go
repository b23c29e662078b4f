package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/procmgr/internal/events"
	"github.com/smazurov/procmgr/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter publishes process resource usage as bus events.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher, interval time.Duration) *SSEExporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SSEExporter{
		eventBus: eventBus,
		interval: interval,
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishUsage()
		}
	}
}

func (s *SSEExporter) publishUsage() {
	for label, u := range metrics.GetAllUsage() {
		s.eventBus.Publish(events.ProcessUsageEvent{
			Label:      label,
			PID:        u.PID,
			CPUPercent: strconv.FormatFloat(u.CPUPercent, 'f', 2, 64),
			RSSBytes:   u.RSSBytes,
			Threads:    u.Threads,
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"process-usage": events.ProcessUsageEvent{},
	}
}
