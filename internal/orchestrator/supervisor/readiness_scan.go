package supervisor

import (
	"fmt"
	"os"
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/apierr"
	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/pkg/logger"
)

// awaitReadiness polls the process's captured logs every 500ms until the
// readiness predicate fires, the process dies, or processStartTimeoutSeconds
// elapses, blocking the caller for the duration — per spec §4.4's STARTING
// state and §7's requirement that a spawn's future fails on a startup
// readiness failure. tpl is nil for a static instance with no
// manifest-declared readiness probe. On success inst remains STARTING; the
// caller sets it to RUNNING and then registers it. On
// failure the returned error is apierr.Runtime and the process is left
// running for the caller to kill as part of its own rollback.
func (s *Supervisor) awaitReadiness(inst *model.Instance, tpl *model.Template) error {
	predicate := resolvePredicate(tpl)
	timeout := s.cfg.ProcessStartTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if !s.deps.Processes.IsAlive(inst.ServerID) {
			return apierr.New(apierr.Runtime, "supervisor.awaitReadiness", fmt.Errorf("process exited during startup"))
		}

		logs := s.deps.Processes.RecentLogs(inst.ServerID, 50)
		if predicate.Ready(logs) {
			logger.Info("instance became ready", map[string]interface{}{"serverId": inst.ServerID})
			return nil
		}

		if time.Now().After(deadline) {
			if s.deps.Processes.IsAlive(inst.ServerID) {
				logger.Warn("instance startup timeout, assuming ready", map[string]interface{}{
					"serverId": inst.ServerID, "timeout": timeout.String(),
				})
				return nil
			}
			return apierr.New(apierr.Runtime, "supervisor.awaitReadiness", fmt.Errorf("process exited during startup"))
		}
	}
	return nil
}

// markFailed is invoked for an already-registered instance that dies after
// it reached RUNNING (detected by the periodic health probe): unregister,
// release the port, clean up a DYNAMIC working directory, and publish the
// shutdown event. A failure during the spawn transaction's own readiness
// wait never reaches here — nothing has been registered yet, so the spawn
// call rolls back directly instead.
func (s *Supervisor) markFailed(inst *model.Instance, message string) {
	s.transition(inst, model.Failed, message)
	now := time.Now()
	s.mu.Lock()
	inst.StoppedAt = &now
	inst.StopReason = message
	s.mu.Unlock()

	s.deps.Registry.Unregister(inst.ServerID)
	s.deps.Ports.Release(inst.Port)

	if inst.Type == model.Dynamic && s.cfg.DynamicAutoCleanup {
		if err := os.RemoveAll(inst.WorkingDir); err != nil {
			logger.Error("failed to clean up dynamic working directory after failure", err, map[string]interface{}{
				"serverId": inst.ServerID, "path": inst.WorkingDir,
			})
		}
	}

	s.untrack(inst.ServerID)

	s.deps.Bus.Publish(events.TypeServerShutdown, events.ServerShutdown{
		ServerID: inst.ServerID,
		Reason:   events.ReasonProcessCrashed,
		Forced:   true,
	})
}
