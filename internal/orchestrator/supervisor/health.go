package supervisor

import (
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
)

// healthLoop runs the periodic fleet health probe at the configured
// interval until Stop is called.
func (s *Supervisor) healthLoop() {
	defer close(s.healthDone)

	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHealth:
			return
		case <-ticker.C:
			s.probeAll(interval)
		}
	}
}

// probeAll checks every RUNNING or UNHEALTHY instance: one whose process
// has died is marked FAILED, and a DYNAMIC one is also unregistered and
// cleaned up right away, inside the probe (a STATIC one stays registered in
// FAILED); a stale heartbeat (when one is being reported at all) flips RUNNING to
// UNHEALTHY. Instances that never report a heartbeat are never marked
// UNHEALTHY on that basis alone — a heartbeat-absent instance is simply
// never checked for staleness, preserved as documented behavior rather than
// patched, see DESIGN.md open question #3.
func (s *Supervisor) probeAll(interval time.Duration) {
	s.mu.RLock()
	instances := make([]*model.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.RUnlock()

	staleAfter := 3 * interval

	for _, inst := range instances {
		s.mu.RLock()
		status := inst.Status
		s.mu.RUnlock()

		if status != model.Running && status != model.Unhealthy {
			continue
		}

		if !s.deps.Processes.IsAlive(inst.ServerID) {
			if inst.Type == model.Dynamic {
				s.markFailed(inst, "Process died")
			} else {
				s.transition(inst, model.Failed, "Process died")
			}
			continue
		}

		s.mu.RLock()
		heartbeat := inst.LastHeartbeat
		s.mu.RUnlock()
		if heartbeat == nil {
			continue
		}

		stale := time.Since(*heartbeat) > staleAfter
		switch {
		case stale && status == model.Running:
			s.transition(inst, model.Unhealthy, "heartbeat stale")
		case !stale && status == model.Unhealthy:
			s.transition(inst, model.Running, "heartbeat recovered")
		}
	}
}

// Heartbeat records a liveness signal reported by the backend process
// itself (spec §4.4); absent any report, an instance's heartbeat stays nil
// forever and the staleness check above never applies to it.
func (s *Supervisor) Heartbeat(serverID string) bool {
	inst := s.Get(serverID)
	if inst == nil {
		return false
	}
	now := time.Now()
	s.mu.Lock()
	inst.LastHeartbeat = &now
	s.mu.Unlock()
	return true
}
