package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/numdrassl/servermanager/internal/orchestrator/apierr"
	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/internal/orchestrator/portalloc"
	"github.com/numdrassl/servermanager/internal/orchestrator/process"
	"github.com/numdrassl/servermanager/internal/orchestrator/readiness"
	"github.com/numdrassl/servermanager/internal/orchestrator/registry"
	"github.com/numdrassl/servermanager/internal/orchestrator/template"
)

// fakeJava stands in for the java executable in tests: it prints a
// readiness marker, then sleeps until signalled.
func fakeJava(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakejava")
	script := "#!/bin/sh\necho Done\nsleep 60\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestSupervisor(t *testing.T) (*Supervisor, *template.Store, string) {
	t.Helper()
	return newTestSupervisorWithJava(t, fakeJava(t), 2*time.Second)
}

func newTestSupervisorWithJava(t *testing.T, javaPath string, processStartTimeout time.Duration) (*Supervisor, *template.Store, string) {
	t.Helper()
	root := t.TempDir()
	templatesRoot := filepath.Join(root, "templates")
	dynamicRoot := filepath.Join(root, "dynamic")

	store := template.New(templatesRoot)
	if err := store.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := store.Create("bedwars"); err != nil {
		t.Fatal(err)
	}
	// Create scaffolds a manifest and startup script but no server jar;
	// validation requires one, so drop in a stand-in before reloading.
	if err := os.WriteFile(filepath.Join(templatesRoot, "bedwars", "HytaleServer.jar"), []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	store.Reload()

	deps := Dependencies{
		Templates:   store,
		Processes:   process.New(javaPath, filepath.Join(root, "logs")),
		Ports:       portalloc.New(),
		Registry:    registry.New(),
		Bus:         events.New(100),
		DynamicRoot: dynamicRoot,
		StaticRoot:  filepath.Join(root, "static"),
	}

	sup := New(Config{
		HealthCheckInterval:    50 * time.Millisecond,
		ProcessStartTimeout:    processStartTimeout,
		DynamicSpawningEnabled: true,
		DynamicAutoCleanup:     true,
		MaxConcurrentDynamic:   10,
	}, deps)

	if err := sup.Initialize(); err != nil {
		t.Fatal(err)
	}

	return sup, store, dynamicRoot
}

// fakeJavaSilent never prints a readiness marker but stays alive, to
// exercise the readiness-scan timeout-while-alive branch.
func fakeJavaSilent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakejava-silent")
	script := "#!/bin/sh\nsleep 60\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeJavaCrash exits immediately without printing a readiness marker, to
// exercise the readiness-scan dead-process-before-ready branch.
func fakeJavaCrash(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakejava-crash")
	script := "#!/bin/sh\nexit 1\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitForStatus(t *testing.T, sup *Supervisor, serverID string, status model.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if inst := sup.Get(serverID); inst != nil && inst.Status == status {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("instance %s did not reach status %s within %s", serverID, status, timeout)
}

func TestSpawnDynamicBecomesRunning(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	if inst.Status != model.Running {
		t.Fatalf("expected SpawnDynamic to block until ready and return RUNNING, got %s", inst.Status)
	}

	if sup.Get(inst.ServerID) == nil {
		t.Fatal("expected instance to be registered once SpawnDynamic returns")
	}

	if _, err := os.Stat(inst.WorkingDir); err != nil {
		t.Fatalf("expected cloned working directory to exist: %v", err)
	}
}

func TestSpawnDynamicRejectsUnknownTemplate(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	if _, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "does-not-exist"}); err == nil {
		t.Fatal("expected an error for an unknown template")
	}
}

func TestSpawnDynamicRespectsMaxConcurrent(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	sup.cfg.MaxConcurrentDynamic = 1

	if _, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"}); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"}); err == nil {
		t.Fatal("expected the second spawn to be rejected by the concurrency cap")
	}
}

func TestShutdownReleasesPortAndCleansDirectory(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	waitForStatus(t, sup, inst.ServerID, model.Running, 2*time.Second)

	port := inst.Port
	workingDir := inst.WorkingDir

	if err := sup.Shutdown(context.Background(), inst.ServerID, true, events.ReasonAdminRequest); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if sup.Get(inst.ServerID) != nil {
		t.Fatal("expected the instance to be untracked after shutdown")
	}
	if sup.deps.Ports.IsTaken(port) {
		t.Fatal("expected the port to be released after shutdown")
	}
	if _, err := os.Stat(workingDir); !os.IsNotExist(err) {
		t.Fatal("expected the dynamic working directory to be removed after shutdown with auto-cleanup enabled")
	}
}

func TestShutdownOfUnknownInstanceFails(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	if err := sup.Shutdown(context.Background(), "ghost", false, events.ReasonAdminRequest); err == nil {
		t.Fatal("expected shutdown of an unknown instance to fail")
	}
}

func TestRestartPreservesServerIDAndMaxPlayers(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars", MaxPlayers: 4})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	waitForStatus(t, sup, inst.ServerID, model.Running, 2*time.Second)
	originalID := inst.ServerID

	restarted, err := sup.Restart(context.Background(), originalID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.ServerID != originalID {
		t.Fatalf("expected serverId to be preserved across restart, got %q want %q", restarted.ServerID, originalID)
	}
	if restarted.MaxPlayers != 4 {
		t.Fatalf("expected maxPlayers to be preserved across restart, got %d", restarted.MaxPlayers)
	}
}

func TestRestartFailsForDynamicInstanceWithoutTemplate(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst := &model.Instance{
		ServerID:         "orphan-1",
		Type:             model.Dynamic,
		Template:         nil,
		Status:           model.Running,
		ConnectedPlayers: map[string]struct{}{},
	}
	sup.track(inst)
	sup.deps.Registry.Register(inst)

	if _, err := sup.Restart(context.Background(), "orphan-1"); err == nil {
		t.Fatal("expected restart to fail for a dynamic instance with no template reference")
	}
}

func TestHeartbeatThenHealthProbeDetectsStaleness(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	waitForStatus(t, sup, inst.ServerID, model.Running, 2*time.Second)

	sup.Heartbeat(inst.ServerID)
	sup.probeAll(sup.cfg.HealthCheckInterval)
	if inst.Status != model.Running {
		t.Fatalf("expected instance to remain RUNNING immediately after a fresh heartbeat, got %s", inst.Status)
	}

	stale := time.Now().Add(-time.Hour)
	sup.mu.Lock()
	inst.LastHeartbeat = &stale
	sup.mu.Unlock()

	sup.probeAll(sup.cfg.HealthCheckInterval)
	if inst.Status != model.Unhealthy {
		t.Fatalf("expected a stale heartbeat to flip the instance to UNHEALTHY, got %s", inst.Status)
	}
}

func TestInstanceWithoutHeartbeatIsNeverMarkedUnhealthy(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	waitForStatus(t, sup, inst.ServerID, model.Running, 2*time.Second)

	for i := 0; i < 5; i++ {
		sup.probeAll(sup.cfg.HealthCheckInterval)
	}

	if inst.Status != model.Running {
		t.Fatalf("an instance that never reports a heartbeat must never be marked UNHEALTHY on that basis, got %s", inst.Status)
	}
}

func TestInitializeWipesStaleDynamicDirectories(t *testing.T) {
	root := t.TempDir()
	dynamicRoot := filepath.Join(root, "dynamic")
	stale := filepath.Join(dynamicRoot, "leftover-1")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	sup := New(Config{}, Dependencies{
		Registry:    registry.New(),
		Bus:         events.New(10),
		DynamicRoot: dynamicRoot,
	})
	if err := sup.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	entries, err := os.ReadDir(dynamicRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the dynamic root to be wiped on initialization, found %v", entries)
	}
}

func TestReadinessTimeoutWithProcessStillAliveBecomesRunning(t *testing.T) {
	sup, _, _ := newTestSupervisorWithJava(t, fakeJavaSilent(t), 100*time.Millisecond)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	if inst.Status != model.Running {
		t.Fatalf("expected a timeout-while-alive readiness result to return RUNNING, got %s", inst.Status)
	}

	if _, err := os.Stat(inst.WorkingDir); err != nil {
		t.Fatalf("expected the working directory to survive a timeout-while-alive readiness result: %v", err)
	}
}

func TestSpawnDynamicFailsWhenProcessDiesBeforeReady(t *testing.T) {
	sup, _, dynamicRoot := newTestSupervisorWithJava(t, fakeJavaCrash(t), 2*time.Second)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err == nil {
		t.Fatal("expected SpawnDynamic to fail when the process dies before becoming ready")
	}
	if inst != nil {
		t.Fatalf("expected SpawnDynamic to return a nil instance on failure, got %+v", inst)
	}
	if apierr.KindOf(err) != apierr.Runtime {
		t.Fatalf("expected a Runtime-kind error, got %v (%v)", apierr.KindOf(err), err)
	}

	entries, readErr := os.ReadDir(dynamicRoot)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the cloned working directory to be rolled back, found %v", entries)
	}

	if sup.deps.Ports.AcquireInRange(26000, 26999) == -1 {
		t.Fatal("expected the acquired port to have been released on rollback")
	}
}

func TestRestartOfDynamicInstanceReusesWorkingDirectoryPath(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	inst, err := sup.SpawnDynamic(context.Background(), SpawnDynamicInput{TemplateName: "bedwars"})
	if err != nil {
		t.Fatalf("SpawnDynamic: %v", err)
	}
	waitForStatus(t, sup, inst.ServerID, model.Running, 2*time.Second)
	originalID := inst.ServerID
	originalWorkingDir := inst.WorkingDir

	restarted, err := sup.Restart(context.Background(), originalID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.WorkingDir != originalWorkingDir {
		t.Fatalf("expected the restarted instance to reuse the same working directory path, got %q want %q", restarted.WorkingDir, originalWorkingDir)
	}
}

func TestResolvePredicateBuildsRCONFromTemplateMetadata(t *testing.T) {
	tpl := &model.Template{
		Metadata: model.TemplateMetadata{
			ReadinessProbe: model.ReadinessRCON,
			RCONPort:       25580,
			RCONPassword:   "s3cret",
		},
	}

	p, ok := resolvePredicate(tpl).(readiness.RCONPredicate)
	if !ok {
		t.Fatalf("expected resolvePredicate to select RCONPredicate for a template declaring readinessProbe: rcon, got %T", resolvePredicate(tpl))
	}
	if p.Host != "localhost" || p.Port != 25580 || p.Password != "s3cret" {
		t.Fatalf("expected RCONPredicate{localhost, 25580, s3cret}, got %+v", p)
	}

	tpl.Metadata.ReadinessProbe = model.ReadinessLogScan
	if _, ok := resolvePredicate(tpl).(readiness.LogScanPredicate); !ok {
		t.Fatalf("expected resolvePredicate to fall back to LogScanPredicate for readinessProbe: logscan")
	}
}
