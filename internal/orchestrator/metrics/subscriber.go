package metrics

import (
	"github.com/numdrassl/servermanager/internal/orchestrator/events"
)

// Subscriber returns an events.Subscriber that increments the lifecycle
// counters from the Bus, wiring the event-sourced fleet history into
// Prometheus alongside the gauge series ObserveFleet refreshes from a
// registry snapshot.
func Subscriber() events.Subscriber {
	return func(evt events.Event) {
		switch p := evt.Payload.(type) {
		case events.ServerSpawn:
			SpawnTotal.WithLabelValues(p.Type, "success").Inc()
		case events.ServerShutdown:
			ShutdownTotal.WithLabelValues(string(p.Reason)).Inc()
		case events.ServerHealth:
			HealthProbeTransitions.WithLabelValues(p.Previous, p.New).Inc()
		}
	}
}
