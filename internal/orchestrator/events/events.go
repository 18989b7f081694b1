// Package events is the orchestrator's lifecycle event bus: the instance
// supervisor emits ServerSpawn/ServerShutdown after every committed spawn or
// shutdown and ServerHealth on status transitions; subscribers (a dashboard websocket, an
// optional InfluxDB sink) receive them in commit order.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ShutdownReason enumerates why an instance was torn down, matching spec §6
// exactly. ADMIN_REQUEST is used for both graceful and forced
// operator-initiated shutdowns — see DESIGN.md open question #1; "forced"
// is carried as a separate bool on the payload rather than folded into the
// reason.
type ShutdownReason string

const (
	ReasonAdminRequest       ShutdownReason = "ADMIN_REQUEST"
	ReasonGameEnded          ShutdownReason = "GAME_ENDED"
	ReasonProcessCrashed     ShutdownReason = "PROCESS_CRASHED"
	ReasonHealthCheckFailed  ShutdownReason = "HEALTH_CHECK_FAILED"
	ReasonProxyShutdown      ShutdownReason = "PROXY_SHUTDOWN"
	ReasonAutoCleanup        ShutdownReason = "AUTO_CLEANUP"
	ReasonUnknown            ShutdownReason = "UNKNOWN"
)

// Type tags an event's payload kind.
type Type string

const (
	TypeServerSpawn    Type = "ServerSpawn"
	TypeServerShutdown Type = "ServerShutdown"
	TypeServerHealth   Type = "ServerHealth"
)

// Event is the envelope every payload is delivered in.
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Payload   any
}

// ServerSpawn is emitted once a spawn transaction commits.
type ServerSpawn struct {
	ServerID     string
	Type         string
	Port         int
	TemplateName string
}

// ServerShutdown is emitted once a shutdown transaction commits.
type ServerShutdown struct {
	ServerID string
	Reason   ShutdownReason
	Forced   bool
}

// ServerHealth is emitted on the status transitions the instance supervisor
// makes through its transition helper: the periodic health probe's changes
// and a shutdown's move to STOPPING. The readiness scanner's STARTING to
// RUNNING change is not reported with this event.
type ServerHealth struct {
	ServerID string
	Previous string
	New      string
	Message  string
}

// Recovered reports whether this health event represents a recovery from
// UNHEALTHY back to RUNNING.
func (h ServerHealth) Recovered() bool {
	return h.Previous == "UNHEALTHY" && h.New == "RUNNING"
}

// Subscriber receives events published on the Bus.
type Subscriber func(Event)

// Bus is a simple in-process publish/subscribe fan-out. One producer (the
// instance supervisor), many consumers.
type Bus struct {
	mu         sync.RWMutex
	subscribers map[int]Subscriber
	nextID     int
	history     []Event
	historyCap  int
}

// New builds a Bus retaining up to historyCap recent events for Query.
func New(historyCap int) *Bus {
	return &Bus{historyCap: historyCap, subscribers: make(map[int]Subscriber)}
}

// Subscribe registers sub to receive every future published event. The
// returned function removes sub; callers that subscribe for the lifetime
// of a single connection (a websocket stream) must call it on disconnect
// or the Bus accumulates dead subscribers.
func (b *Bus) Subscribe(sub Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Publish delivers an event of the given type and payload to every
// subscriber, synchronously, in the order Publish is called — this is what
// gives spec §5's "events observe the order of the triggering transactions'
// commits" guarantee for a single producer.
func (b *Bus) Publish(typ Type, payload any) Event {
	evt := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	b.mu.Lock()
	b.history = append(b.history, evt)
	if b.historyCap > 0 && len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub(evt)
	}
	return evt
}

// Query returns the retained event history, most recent last.
func (b *Bus) Query() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}
