// Package facade is the orchestrator's single entry point: it wires every
// other component together at startup, loads static servers, and exposes
// the operator-facing operations the HTTP and websocket layers call into.
package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/internal/orchestrator/portalloc"
	"github.com/numdrassl/servermanager/internal/orchestrator/process"
	"github.com/numdrassl/servermanager/internal/orchestrator/registry"
	"github.com/numdrassl/servermanager/internal/orchestrator/supervisor"
	"github.com/numdrassl/servermanager/internal/orchestrator/template"
	"github.com/numdrassl/servermanager/pkg/config"
	"github.com/numdrassl/servermanager/pkg/logger"
)

// Directory layout under the configured servers root, matching spec §6.
const (
	DirStatic    = "static"
	DirDynamic   = "dynamic"
	DirTemplates = "templates"
	DirLogs      = "logs"
	configFile   = "config.yml"
)

// Manager is the assembled orchestrator: every component plus the
// directories it was rooted at.
type Manager struct {
	Root string

	Config     *config.Config
	Templates  *template.Store
	Processes  *process.Supervisor
	Ports      *portalloc.Allocator
	Registry   *registry.Registry
	Bus        *events.Bus
	Supervisor *supervisor.Supervisor
}

// Initialize creates the on-disk directory structure if absent, loads
// configuration, wires every component, discovers templates, and starts
// the health probe. It does not yet start any static servers; call
// LoadStaticServers separately once the caller is ready to accept events.
func Initialize(root string) (*Manager, error) {
	if err := createDirectoryStructure(root); err != nil {
		return nil, fmt.Errorf("creating directory structure: %w", err)
	}

	cfg, err := config.Load(filepath.Join(root, configFile))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	reg := registry.New()
	ports := portalloc.New()
	bus := events.New(500)
	procs := process.New(cfg.JavaPath, filepath.Join(root, DirLogs))

	templates := template.New(filepath.Join(root, DirTemplates))
	if err := templates.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing templates: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		HealthCheckInterval:    time.Duration(cfg.HealthCheckIntervalSeconds) * time.Second,
		ProcessStartTimeout:    time.Duration(cfg.ProcessStartTimeoutSeconds) * time.Second,
		DynamicSpawningEnabled: cfg.DynamicSpawning.Enabled,
		DynamicAutoCleanup:     cfg.DynamicSpawning.AutoCleanup,
		MaxConcurrentDynamic:   cfg.DynamicSpawning.MaxConcurrent,
	}, supervisor.Dependencies{
		Templates:   templates,
		Processes:   procs,
		Ports:       ports,
		Registry:    reg,
		Bus:         bus,
		DynamicRoot: filepath.Join(root, DirDynamic),
		StaticRoot:  filepath.Join(root, DirStatic),
		TemplateConfig: func(name string) supervisor.TemplateDefaults {
			tc, ok := cfg.Templates[name]
			if !ok {
				return supervisor.TemplateDefaults{}
			}
			return supervisor.TemplateDefaults{
				PortRangeStart: tc.PortRangeStart,
				PortRangeEnd:   tc.PortRangeEnd,
				Memory:         tc.Memory,
				JVMArgs:        tc.JVMArgs,
				Environment:    tc.Environment,
			}
		},
	})

	if err := sup.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing instance supervisor: %w", err)
	}
	sup.Start()

	m := &Manager{
		Root:       root,
		Config:     cfg,
		Templates:  templates,
		Processes:  procs,
		Ports:      ports,
		Registry:   reg,
		Bus:        bus,
		Supervisor: sup,
	}

	return m, nil
}

func createDirectoryStructure(root string) error {
	for _, dir := range []string{DirStatic, DirDynamic, DirTemplates, DirLogs} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// LoadStaticServers brings up every config-declared static server marked
// alwaysOn. A server whose configured working directory does not exist is
// skipped with a warning rather than aborting the rest.
func (m *Manager) LoadStaticServers(ctx context.Context) {
	for id, sc := range m.Config.StaticServers {
		if !sc.AlwaysOn {
			continue
		}
		workingDir := filepath.Join(m.Root, DirStatic, id)
		if _, err := os.Stat(workingDir); err != nil {
			logger.Warn("skipping always-on static server with missing working directory", map[string]interface{}{
				"serverId": id, "path": workingDir,
			})
			continue
		}
		go func(id string, sc config.StaticServerConfig, workingDir string) {
			if _, err := m.Supervisor.SpawnStatic(ctx, supervisor.SpawnStaticInput{
				ServerID:   id,
				WorkingDir: workingDir,
				Port:       sc.Port,
				MaxPlayers: sc.MaxPlayers,
				Memory:     sc.Memory,
				ExtraArgs:  sc.JVMArgs,
				Env:        sc.Environment,
			}); err != nil {
				logger.Error("failed to start always-on static server", err, map[string]interface{}{"serverId": id})
			}
		}(id, sc, workingDir)
	}
}

// Shutdown tears down every supervised instance within the fleet-wide
// budget and stops the health probe.
func (m *Manager) Shutdown(ctx context.Context) {
	m.Supervisor.ShutdownAll(ctx)
	m.Supervisor.Stop()
}

// StartStatic brings up a static server not already running, looking up
// its configuration by id.
func (m *Manager) StartStatic(ctx context.Context, serverID string) (*model.Instance, error) {
	sc, ok := m.Config.StaticServers[serverID]
	if !ok {
		return nil, fmt.Errorf("no static server configured with id %s", serverID)
	}
	workingDir := filepath.Join(m.Root, DirStatic, serverID)
	return m.Supervisor.SpawnStatic(ctx, supervisor.SpawnStaticInput{
		ServerID:   serverID,
		WorkingDir: workingDir,
		Port:       sc.Port,
		MaxPlayers: sc.MaxPlayers,
		Memory:     sc.Memory,
		ExtraArgs:  sc.JVMArgs,
		Env:        sc.Environment,
	})
}

// SpawnDynamic materialises a new ephemeral backend from a template.
func (m *Manager) SpawnDynamic(ctx context.Context, templateName string, maxPlayers int) (*model.Instance, error) {
	return m.Supervisor.SpawnDynamic(ctx, supervisor.SpawnDynamicInput{
		TemplateName: templateName,
		MaxPlayers:   maxPlayers,
	})
}

// ShutdownInstance tears a single instance down.
func (m *Manager) ShutdownInstance(ctx context.Context, serverID string, force bool) error {
	return m.Supervisor.Shutdown(ctx, serverID, force, events.ReasonAdminRequest)
}

// Restart restarts a single instance in place, preserving its identity.
func (m *Manager) Restart(ctx context.Context, serverID string) (*model.Instance, error) {
	return m.Supervisor.Restart(ctx, serverID)
}

// Get returns the registered instance by id, or nil.
func (m *Manager) Get(serverID string) *model.Instance {
	return m.Registry.Get(serverID)
}

// All returns every registered instance.
func (m *Manager) All() []*model.Instance {
	return m.Registry.All()
}

// Stats returns fleet-wide totals.
func (m *Manager) Stats() registry.Stats {
	return m.Registry.Stats()
}

// CreateTemplate scaffolds a new template directory.
func (m *Manager) CreateTemplate(name string) error {
	return m.Templates.Create(name)
}

// FindAvailable selects the least-loaded available instance for a
// template, used by an external proxy integration to route a connecting
// player.
func (m *Manager) FindAvailable(templateName string) *model.Instance {
	return m.Registry.FindAvailable(templateName)
}
