package events

import (
	"testing"
)

func TestPublishDeliversToAllSubscribersInOrder(t *testing.T) {
	b := New(10)
	var a, c []Type
	b.Subscribe(func(e Event) { a = append(a, e.Type) })
	b.Subscribe(func(e Event) { c = append(c, e.Type) })

	b.Publish(TypeServerSpawn, ServerSpawn{ServerID: "x"})
	b.Publish(TypeServerShutdown, ServerShutdown{ServerID: "x"})

	want := []Type{TypeServerSpawn, TypeServerShutdown}
	for _, got := range [][]Type{a, c} {
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(10)
	var count int
	unsubscribe := b.Subscribe(func(e Event) { count++ })

	b.Publish(TypeServerSpawn, ServerSpawn{})
	unsubscribe()
	b.Publish(TypeServerSpawn, ServerSpawn{})

	if count != 1 {
		t.Fatalf("got %d deliveries, want 1 after unsubscribe", count)
	}
}

func TestHistoryIsBoundedByCapacity(t *testing.T) {
	b := New(2)
	b.Publish(TypeServerSpawn, ServerSpawn{ServerID: "1"})
	b.Publish(TypeServerSpawn, ServerSpawn{ServerID: "2"})
	b.Publish(TypeServerSpawn, ServerSpawn{ServerID: "3"})

	history := b.Query()
	if len(history) != 2 {
		t.Fatalf("got %d history entries, want 2", len(history))
	}
	if history[0].Payload.(ServerSpawn).ServerID != "2" || history[1].Payload.(ServerSpawn).ServerID != "3" {
		t.Fatalf("expected the oldest entry to have been evicted, got %+v", history)
	}
}

func TestServerHealthRecovered(t *testing.T) {
	h := ServerHealth{Previous: "UNHEALTHY", New: "RUNNING"}
	if !h.Recovered() {
		t.Fatal("expected transition from UNHEALTHY to RUNNING to be a recovery")
	}
	h2 := ServerHealth{Previous: "RUNNING", New: "UNHEALTHY"}
	if h2.Recovered() {
		t.Fatal("transition into UNHEALTHY must not be reported as a recovery")
	}
}
