package registry

import (
	"testing"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
)

func newInstance(id string, port int, status model.Status, players int) *model.Instance {
	connected := make(map[string]struct{})
	for i := 0; i < players; i++ {
		connected[string(rune('a'+i))] = struct{}{}
	}
	return &model.Instance{
		ServerID:         id,
		Type:             model.Dynamic,
		Port:             port,
		MaxPlayers:       10,
		Status:           status,
		ConnectedPlayers: connected,
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := New()
	if err := r.Register(newInstance("a", 1, model.Running, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(newInstance("a", 2, model.Running, 0)); err == nil {
		t.Fatal("expected duplicate id registration to fail")
	}
}

func TestRegisterRejectsDuplicatePort(t *testing.T) {
	r := New()
	if err := r.Register(newInstance("a", 1, model.Running, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(newInstance("b", 1, model.Running, 0)); err == nil {
		t.Fatal("expected duplicate port registration to fail")
	}
}

func TestUnregisterRemovesFromBothIndexes(t *testing.T) {
	r := New()
	r.Register(newInstance("a", 1, model.Running, 0))

	removed := r.Unregister("a")
	if removed == nil {
		t.Fatal("expected the removed instance to be returned")
	}
	if r.Has("a") {
		t.Fatal("instance should no longer be registered by id")
	}
	if r.IsPortInUse(1) {
		t.Fatal("port should be freed once the instance is unregistered")
	}
}

func TestFindAvailablePrefersFewestPlayersThenSmallestID(t *testing.T) {
	r := New()
	r.Register(newInstance("b", 1, model.Running, 2))
	r.Register(newInstance("a", 2, model.Running, 2))
	r.Register(newInstance("c", 3, model.Running, 5))

	got := r.FindAvailable("")
	if got == nil || got.ServerID != "a" {
		t.Fatalf("expected tie broken toward smallest id \"a\", got %v", got)
	}
}

func TestFindAvailableExcludesFullInstances(t *testing.T) {
	r := New()
	full := newInstance("full", 1, model.Running, 10)
	full.MaxPlayers = 10
	r.Register(full)

	if got := r.FindAvailable(""); got != nil {
		t.Fatalf("a full instance must not be returned, got %v", got)
	}
}

func TestFindAvailableExcludesNonRunningInstances(t *testing.T) {
	r := New()
	r.Register(newInstance("starting", 1, model.Starting, 0))

	if got := r.FindAvailable(""); got != nil {
		t.Fatalf("a STARTING instance must not be returned, got %v", got)
	}
}

func TestStatsAggregatesAcrossTypesAndStatuses(t *testing.T) {
	r := New()
	r.Register(newInstance("a", 1, model.Running, 2))
	b := newInstance("b", 2, model.Starting, 0)
	b.Type = model.Static
	r.Register(b)

	stats := r.Stats()
	if stats.Total != 2 || stats.DynamicCount != 1 || stats.StaticCount != 1 || stats.RunningCount != 1 || stats.TotalPlayers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
