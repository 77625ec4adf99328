package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/hearthtale/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of server state changes, readiness results and game turns",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"server-state-changed": events.ServerStateChangedEvent{},
		"server-readiness":     events.ServerReadinessEvent{},
		"game-turn":            events.GameTurnEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ServerStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ServerReadinessEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.GameTurnEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Current state first so clients need no separate GET.
		info := s.options.Server.Info()
		current := events.ServerStateChangedEvent{
			From:      string(info.State),
			To:        string(info.State),
			PID:       info.PID,
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if info.LastError != nil {
			current.Error = info.LastError.Error()
		}
		if err := send.Data(current); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
