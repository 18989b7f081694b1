package model

import "testing"

func TestEffectiveServerIDPrefix(t *testing.T) {
	cases := []struct {
		name string
		meta TemplateMetadata
		want string
	}{
		{"explicit prefix wins", TemplateMetadata{ServerIDPrefix: "bw", Name: "BedWars"}, "bw"},
		{"falls back to slugified name", TemplateMetadata{Name: "Sky Wars 2"}, "sky-wars-2"},
		{"falls back to literal default", TemplateMetadata{}, "server"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.meta.EffectiveServerIDPrefix(); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{Stopped, Failed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{Created, Starting, Running, Stopping, Unhealthy} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatusProcessExpected(t *testing.T) {
	for _, s := range []Status{Starting, Running, Stopping, Unhealthy} {
		if !s.ProcessExpected() {
			t.Errorf("%s should expect a process handle", s)
		}
	}
	for _, s := range []Status{Created, Stopped, Failed} {
		if s.ProcessExpected() {
			t.Errorf("%s should not expect a process handle", s)
		}
	}
}

func TestInstanceIsFullAndAcceptingPlayers(t *testing.T) {
	inst := &Instance{
		Status:           Running,
		MaxPlayers:       2,
		ConnectedPlayers: map[string]struct{}{"alice": {}},
	}
	if inst.IsFull() {
		t.Fatal("expected not full with 1/2 players")
	}
	if !inst.IsAcceptingPlayers() {
		t.Fatal("expected accepting players while running and not full")
	}

	inst.ConnectedPlayers["bob"] = struct{}{}
	if !inst.IsFull() {
		t.Fatal("expected full at 2/2 players")
	}
	if inst.IsAcceptingPlayers() {
		t.Fatal("expected not accepting players once full")
	}
}

func TestInstanceNotAcceptingPlayersWhenNotRunning(t *testing.T) {
	inst := &Instance{Status: Starting, MaxPlayers: 10, ConnectedPlayers: map[string]struct{}{}}
	if inst.IsAcceptingPlayers() {
		t.Fatal("a STARTING instance must not accept players")
	}
}
