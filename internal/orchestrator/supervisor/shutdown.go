package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/apierr"
	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/pkg/logger"
)

// Shutdown tears an instance down: kill the process (graceful unless
// force, with the deadline resolved from the owning template's metadata
// only — a template's own config-file gracefulShutdownTimeoutSeconds is
// never consulted, see DESIGN.md open question #2), release its port,
// recursively delete its working directory when it is a DYNAMIC instance
// with auto-cleanup enabled, mark STOPPED, and drop it from the map.
func (s *Supervisor) Shutdown(ctx context.Context, serverID string, force bool, reason events.ShutdownReason) error {
	inst := s.Get(serverID)
	if inst == nil {
		return apierr.New(apierr.Precondition, "supervisor.Shutdown", fmt.Errorf("unknown server %s", serverID))
	}

	s.mu.RLock()
	status := inst.Status
	s.mu.RUnlock()
	if status.Terminal() {
		return apierr.New(apierr.Precondition, "supervisor.Shutdown", fmt.Errorf("server %s already %s", serverID, status))
	}

	s.transition(inst, model.Stopping, "shutdown requested")

	deadline := gracefulDeadline(inst.Template)
	s.deps.Processes.Kill(serverID, !force, int(deadline.Seconds()))

	s.deps.Ports.Release(inst.Port)

	if inst.Type == model.Dynamic && s.cfg.DynamicAutoCleanup {
		if err := os.RemoveAll(inst.WorkingDir); err != nil {
			logger.Error("failed to clean up dynamic working directory", err, map[string]interface{}{
				"serverId": serverID, "path": inst.WorkingDir,
			})
		}
	}

	now := time.Now()
	s.mu.Lock()
	inst.Status = model.Stopped
	inst.StoppedAt = &now
	inst.StopReason = string(reason)
	s.mu.Unlock()

	s.deps.Registry.Unregister(serverID)
	s.untrack(serverID)

	logger.Info("instance shut down", map[string]interface{}{"serverId": serverID, "reason": reason, "forced": force})
	s.deps.Bus.Publish(events.TypeServerShutdown, events.ServerShutdown{
		ServerID: serverID, Reason: reason, Forced: force,
	})

	return nil
}

// Restart shuts an instance down and spawns a replacement preserving the
// original serverId and maxPlayers. A DYNAMIC instance with no template
// reference cannot be restarted, since there is nothing to respawn from.
func (s *Supervisor) Restart(ctx context.Context, serverID string) (*model.Instance, error) {
	inst := s.Get(serverID)
	if inst == nil {
		return nil, apierr.New(apierr.Precondition, "supervisor.Restart", fmt.Errorf("unknown server %s", serverID))
	}

	if inst.Type == model.Dynamic && inst.Template == nil {
		return nil, apierr.New(apierr.Precondition, "supervisor.Restart", fmt.Errorf("dynamic server %s has no template reference", serverID))
	}

	serverIDSnapshot := inst.ServerID
	maxPlayers := inst.MaxPlayers
	isDynamic := inst.Type == model.Dynamic
	workingDir := inst.WorkingDir
	port := inst.Port
	var templateName string
	if inst.Template != nil {
		templateName = inst.Template.Name
	}

	if err := s.Shutdown(ctx, serverID, false, events.ReasonAdminRequest); err != nil {
		return nil, err
	}

	if isDynamic {
		return s.SpawnDynamic(ctx, SpawnDynamicInput{TemplateName: templateName, MaxPlayers: maxPlayers, ServerID: serverIDSnapshot})
	}

	return s.SpawnStatic(ctx, SpawnStaticInput{
		ServerID:   serverIDSnapshot,
		WorkingDir: workingDir,
		Port:       port,
		MaxPlayers: maxPlayers,
	})
}

// ShutdownAll gracefully tears down every tracked instance within an
// overall 60-second budget, escalating any laggards to a forced kill once
// the budget is exhausted — the fleet-wide escalation spec §5 describes,
// layered above process.Supervisor.Shutdown's simpler flat per-process
// loop.
func (s *Supervisor) ShutdownAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	budget, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for _, id := range ids {
			_ = s.Shutdown(budget, id, false, events.ReasonAdminRequest)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-budget.Done():
		logger.Warn("fleet shutdown budget exceeded, forcing remaining instances", nil)
		s.mu.RLock()
		remaining := make([]string, 0, len(s.instances))
		for id := range s.instances {
			remaining = append(remaining, id)
		}
		s.mu.RUnlock()
		for _, id := range remaining {
			_ = s.Shutdown(context.Background(), id, true, events.ReasonAdminRequest)
		}
	}
}
