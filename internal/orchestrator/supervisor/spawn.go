package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/apierr"
	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/internal/orchestrator/process"
	"github.com/numdrassl/servermanager/internal/orchestrator/template"
	"github.com/numdrassl/servermanager/pkg/logger"
)

// SpawnDynamicInput describes a request to materialise a new ephemeral
// backend from a template.
type SpawnDynamicInput struct {
	TemplateName string
	MaxPlayers   int // 0 uses the template's default
	// ServerID, if set, is reused instead of minting a fresh one — Restart
	// passes the original instance's id through here to preserve identity.
	ServerID string
}

// buildServerArgs constructs the server-arg vector per spec §6: the
// caller's startup args if any, else the Hytale defaults, always followed
// by --bind <port>.
func buildServerArgs(startupArgs []string, port int) []string {
	var args []string
	if len(startupArgs) > 0 {
		args = append(args, startupArgs...)
	} else {
		args = append(args, "--assets", "Assets.zip", "--auth-mode", "insecure", "--transport", "QUIC")
	}
	args = append(args, "--bind", strconv.Itoa(port))
	return args
}

// SpawnDynamic is the spawn transaction of spec §4.4: resolve template,
// acquire a port, clone the template tree, spawn the process, wait for
// readiness, register. Once a port is acquired, a failure at any later step
// releases it and removes the working directory this call created (and
// kills the process if it was started); a failure before that (spawning
// disabled, the concurrency cap, a bad template, an exhausted port range)
// returns an error with nothing to undo.
func (s *Supervisor) SpawnDynamic(ctx context.Context, in SpawnDynamicInput) (*model.Instance, error) {
	if !s.cfg.DynamicSpawningEnabled {
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnDynamic", fmt.Errorf("dynamic spawning disabled"))
	}
	if s.cfg.MaxConcurrentDynamic > 0 && s.countDynamic() >= s.cfg.MaxConcurrentDynamic {
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnDynamic", fmt.Errorf("max concurrent dynamic instances reached (%d)", s.cfg.MaxConcurrentDynamic))
	}

	tpl := s.deps.Templates.ByName(in.TemplateName)
	if tpl == nil {
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnDynamic", fmt.Errorf("unknown template %q", in.TemplateName))
	}
	if !tpl.Valid {
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnDynamic", fmt.Errorf("template %q failed validation", in.TemplateName))
	}

	defaults := TemplateDefaults{}
	if s.deps.TemplateConfig != nil {
		defaults = s.deps.TemplateConfig(in.TemplateName)
	}
	lo, hi := defaults.PortRangeStart, defaults.PortRangeEnd
	if lo == 0 || hi == 0 {
		lo, hi = 26000, 26999
	}

	port := s.deps.Ports.AcquireInRange(lo, hi)
	if port == -1 {
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnDynamic", fmt.Errorf("no free port in range %d-%d", lo, hi))
	}

	serverID := in.ServerID
	if serverID == "" {
		serverID = generateServerID(tpl.Metadata.EffectiveServerIDPrefix(), s.nextCounter())
	}
	workingDir := filepath.Join(s.deps.DynamicRoot, serverID)

	maxPlayers := in.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = tpl.Metadata.MaxPlayers
	}

	rollbackPort := func() { s.deps.Ports.Release(port) }

	_, statErr := os.Stat(workingDir)
	preexisting := statErr == nil
	if err := template.CloneTo(tpl, workingDir, &template.Overrides{
		ServerPort: port,
		ServerID:   serverID,
		MaxPlayers: maxPlayers,
	}); err != nil {
		if !preexisting {
			_ = os.RemoveAll(workingDir)
		}
		rollbackPort()
		return nil, apierr.New(apierr.IO, "supervisor.SpawnDynamic", fmt.Errorf("cloning template: %w", err))
	}
	rollbackClone := func() { _ = os.RemoveAll(workingDir) }

	memory := defaults.Memory
	if memory == "" {
		memory = tpl.Metadata.MemoryAllocation
	}

	env := make(map[string]string, len(defaults.Environment)+3)
	for k, v := range defaults.Environment {
		env[k] = v
	}
	env["NUMDRASSL_PORT"] = strconv.Itoa(port)
	env["NUMDRASSL_TEMPLATE"] = in.TemplateName

	handle, err := s.deps.Processes.Spawn(process.SpawnInput{
		ServerID:   serverID,
		WorkingDir: workingDir,
		Memory:     memory,
		ExecFile:   tpl.Metadata.ServerJar,
		ExtraArgs:  defaults.JVMArgs,
		ServerArgs: buildServerArgs(tpl.Metadata.StartupArgs, port),
		Env:        env,
		IsDynamic:  true,
	})
	if err != nil {
		rollbackClone()
		rollbackPort()
		return nil, apierr.New(apierr.Runtime, "supervisor.SpawnDynamic", fmt.Errorf("spawning process: %w", err))
	}

	now := time.Now()
	inst := &model.Instance{
		ServerID:         serverID,
		Type:             model.Dynamic,
		WorkingDir:       workingDir,
		Port:             port,
		MaxPlayers:       maxPlayers,
		Template:         tpl,
		Status:           model.Starting,
		Process:          handle,
		CreatedAt:        now,
		StartedAt:        &now,
		ConnectedPlayers: make(map[string]struct{}),
		Metadata:         make(map[string]any),
	}

	if err := s.awaitReadiness(inst, tpl); err != nil {
		s.deps.Processes.Kill(serverID, false, 0)
		rollbackClone()
		rollbackPort()
		logger.Error("dynamic instance failed to become ready", err, map[string]interface{}{
			"serverId": serverID, "template": in.TemplateName,
		})
		return nil, err
	}
	inst.Status = model.Running

	if err := s.deps.Registry.Register(inst); err != nil {
		s.deps.Processes.Kill(serverID, false, 0)
		rollbackClone()
		rollbackPort()
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnDynamic", fmt.Errorf("registering instance: %w", err))
	}

	s.track(inst)

	logger.Info("dynamic instance spawned", map[string]interface{}{
		"serverId": serverID, "template": in.TemplateName, "port": port,
	})
	s.deps.Bus.Publish(events.TypeServerSpawn, events.ServerSpawn{
		ServerID: serverID, Type: string(model.Dynamic), Port: port, TemplateName: in.TemplateName,
	})

	return inst, nil
}

// SpawnStaticInput describes a config-declared persistent server to bring
// up under supervision.
type SpawnStaticInput struct {
	ServerID   string
	WorkingDir string
	Port       int
	MaxPlayers int
	Memory     string
	ExecFile   string
	ExtraArgs  []string
	ServerArgs []string
	Env        map[string]string
}

// SpawnStatic brings a persistent, config-declared server under
// supervision: no template clone step, no port range (the port is fixed by
// configuration), otherwise the same process-then-register shape as
// SpawnDynamic.
func (s *Supervisor) SpawnStatic(ctx context.Context, in SpawnStaticInput) (*model.Instance, error) {
	if !s.deps.Ports.AcquireSpecific(in.Port) {
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnStatic", fmt.Errorf("port %d already in use", in.Port))
	}
	rollbackPort := func() { s.deps.Ports.Release(in.Port) }

	handle, err := s.deps.Processes.Spawn(process.SpawnInput{
		ServerID:   in.ServerID,
		WorkingDir: in.WorkingDir,
		Memory:     in.Memory,
		ExecFile:   in.ExecFile,
		ExtraArgs:  in.ExtraArgs,
		ServerArgs: buildServerArgs(in.ServerArgs, in.Port),
		Env:        in.Env,
		IsDynamic:  false,
	})
	if err != nil {
		rollbackPort()
		return nil, apierr.New(apierr.Runtime, "supervisor.SpawnStatic", fmt.Errorf("spawning process: %w", err))
	}

	now := time.Now()
	inst := &model.Instance{
		ServerID:         in.ServerID,
		Type:             model.Static,
		WorkingDir:       in.WorkingDir,
		Port:             in.Port,
		MaxPlayers:       in.MaxPlayers,
		Status:           model.Starting,
		Process:          handle,
		CreatedAt:        now,
		StartedAt:        &now,
		ConnectedPlayers: make(map[string]struct{}),
		Metadata:         make(map[string]any),
	}

	if err := s.awaitReadiness(inst, nil); err != nil {
		s.deps.Processes.Kill(in.ServerID, false, 0)
		rollbackPort()
		logger.Error("static instance failed to become ready", err, map[string]interface{}{"serverId": in.ServerID})
		return nil, err
	}
	inst.Status = model.Running

	if err := s.deps.Registry.Register(inst); err != nil {
		s.deps.Processes.Kill(in.ServerID, false, 0)
		rollbackPort()
		return nil, apierr.New(apierr.Precondition, "supervisor.SpawnStatic", fmt.Errorf("registering instance: %w", err))
	}

	s.track(inst)

	logger.Info("static instance started", map[string]interface{}{"serverId": in.ServerID, "port": in.Port})
	s.deps.Bus.Publish(events.TypeServerSpawn, events.ServerSpawn{
		ServerID: in.ServerID, Type: string(model.Static), Port: in.Port,
	})

	return inst, nil
}
