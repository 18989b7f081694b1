// Package supervisor implements the Instance Supervisor: the per-instance
// state machine, the spawn/shutdown/restart transactions, the readiness
// scanner, and the periodic health probe.
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/internal/orchestrator/portalloc"
	"github.com/numdrassl/servermanager/internal/orchestrator/process"
	"github.com/numdrassl/servermanager/internal/orchestrator/readiness"
	"github.com/numdrassl/servermanager/internal/orchestrator/registry"
	"github.com/numdrassl/servermanager/internal/orchestrator/template"
	"github.com/numdrassl/servermanager/pkg/logger"
)

// Config is the subset of the orchestrator configuration the supervisor
// needs, passed in rather than importing pkg/config directly so the package
// stays testable without a YAML fixture.
type Config struct {
	HealthCheckInterval     time.Duration
	ProcessStartTimeout     time.Duration
	DynamicSpawningEnabled  bool
	DynamicAutoCleanup      bool
	MaxConcurrentDynamic    int
}

// TemplateDefaults carries the per-template overrides a config.yml document
// may declare (port range, memory, jvm args, environment).
type TemplateDefaults struct {
	PortRangeStart int
	PortRangeEnd   int
	Memory         string
	JVMArgs        []string
	Environment    map[string]string
}

// Dependencies are the collaborators the supervisor orchestrates, held as
// the concrete component types of their own packages.
type Dependencies struct {
	Templates *template.Store
	Processes *process.Supervisor
	Ports     *portalloc.Allocator
	Registry  *registry.Registry
	Bus       *events.Bus

	DynamicRoot string
	StaticRoot  string

	TemplateConfig func(templateName string) TemplateDefaults
}

// Supervisor owns the Instance map and runs the readiness scanner and the
// periodic health probe.
type Supervisor struct {
	cfg  Config
	deps Dependencies

	mu        sync.RWMutex
	instances map[string]*model.Instance

	counter    int64
	counterMu  sync.Mutex

	stopHealth chan struct{}
	healthDone chan struct{}
}

// New builds a Supervisor. Call Start to begin the periodic health probe
// and Initialize to perform the boot-time dynamic-root cleanup.
func New(cfg Config, deps Dependencies) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		deps:       deps,
		instances:  make(map[string]*model.Instance),
		stopHealth: make(chan struct{}),
		healthDone: make(chan struct{}),
	}
}

// Initialize recursively deletes every child of the dynamic root: residue
// from a prior process cannot be safely adopted and must not accumulate,
// per spec §4.4.
func (s *Supervisor) Initialize() error {
	entries, err := os.ReadDir(s.deps.DynamicRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(s.deps.DynamicRoot, 0o755)
		}
		return fmt.Errorf("scanning dynamic root: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(s.deps.DynamicRoot, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Error("failed to remove stale dynamic directory", err, map[string]interface{}{"path": path})
		}
	}
	return nil
}

// Start launches the periodic fleet health probe.
func (s *Supervisor) Start() {
	go s.healthLoop()
}

// Stop halts the periodic health probe.
func (s *Supervisor) Stop() {
	close(s.stopHealth)
	<-s.healthDone
}

func (s *Supervisor) nextCounter() int64 {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()
	s.counter++
	return s.counter
}

// Get returns the tracked instance by id, or nil.
func (s *Supervisor) Get(serverID string) *model.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances[serverID]
}

func (s *Supervisor) track(inst *model.Instance) {
	s.mu.Lock()
	s.instances[inst.ServerID] = inst
	s.mu.Unlock()
}

func (s *Supervisor) untrack(serverID string) {
	s.mu.Lock()
	delete(s.instances, serverID)
	s.mu.Unlock()
}

func (s *Supervisor) countDynamic() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, inst := range s.instances {
		if inst.Type == model.Dynamic {
			n++
		}
	}
	return n
}

func (s *Supervisor) transition(inst *model.Instance, to model.Status, message string) {
	s.mu.Lock()
	previous := inst.Status
	inst.Status = to
	s.mu.Unlock()

	if previous != to {
		s.deps.Bus.Publish(events.TypeServerHealth, events.ServerHealth{
			ServerID: inst.ServerID,
			Previous: string(previous),
			New:      string(to),
			Message:  message,
		})
	}
}

func gracefulDeadline(t *model.Template) time.Duration {
	seconds := 30
	if t != nil && t.Metadata.GracefulShutdownTimeout > 0 {
		seconds = t.Metadata.GracefulShutdownTimeout
	}
	return time.Duration(seconds) * time.Second
}

func resolvePredicate(t *model.Template) readiness.Predicate {
	if t == nil {
		return readiness.LogScanPredicate{}
	}
	var rcon readiness.Predicate
	if t.Metadata.ReadinessProbe == model.ReadinessRCON {
		rcon = readiness.RCONPredicate{
			Host:     "localhost",
			Port:     t.Metadata.RCONPort,
			Password: t.Metadata.RCONPassword,
		}
	}
	return readiness.ForTemplate(t.Metadata.ReadinessProbe, rcon)
}

func generateServerID(prefix string, counter int64) string {
	return prefix + "-" + strconv.FormatInt(counter, 10)
}
