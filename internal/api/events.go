package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/procmgr/internal/api/models"
	"github.com/smazurov/procmgr/internal/events"
	"github.com/smazurov/procmgr/internal/metrics/exporters"
	"github.com/smazurov/procmgr/internal/process"
)

// StatusPublisher returns a supervisor status subscriber that republishes
// every transition on bus.
func StatusPublisher(bus *events.Bus) process.StatusFunc {
	return func(label string, state process.State) {
		bus.Publish(events.ProcessStatusEvent{
			Label:     label,
			Status:    int(state),
			State:     state.String(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// registerSSERoutes registers the status event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Sends an init event with every process, then a status event for each state transition",
		Tags:        []string{"events"},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"init":           models.InitData{},
			"status":         events.ProcessStatusEvent{},
			"config-changed": events.ConfigChangedEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypes())
		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before building the init payload so no transition falls
		// between the snapshot and the stream.
		sub := events.NewSubscription(64)
		events.ForwardReliable[events.ProcessStatusEvent](s.eventBus, sub)
		events.Forward[events.ConfigChangedEvent](s.eventBus, sub)
		events.Forward[events.ProcessUsageEvent](s.eventBus, sub)
		defer func() {
			sub.Close()
			if n := sub.Dropped(); n > 0 {
				s.logger.Debug("Event stream client lagged", "dropped", n)
			}
		}()

		if err := send.Data(models.InitData(s.describe())); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Ready():
				pending, resync := sub.Pending()
				if resync {
					s.logger.Debug("Event stream client lagged, resending init", "dropped", sub.Dropped())
					if err := send.Data(models.InitData(s.describe())); err != nil {
						return
					}
				}
				for _, event := range pending {
					if err := send.Data(event); err != nil {
						return
					}
				}
			case event := <-sub.C:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
