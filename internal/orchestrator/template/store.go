// Package template discovers and validates template directories and
// materialises a template into a fresh working directory with a
// per-instance config overlay.
package template

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	manifestFile  = "template.yml"
	overlayFile   = "config.json"
	defaultJar    = "HytaleServer.jar"
	startupScript = "startup.sh"
)

// Store owns the discovered set of templates rooted at a directory.
type Store struct {
	root string

	mu        sync.RWMutex
	templates map[string]*model.Template
}

// New builds a Store rooted at root. Call Initialize to discover templates.
func New(root string) *Store {
	return &Store{root: root, templates: make(map[string]*model.Template)}
}

// Initialize ensures the templates root exists and loads every template
// found directly under it.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating templates root %s: %w", s.root, err)
	}
	s.Reload()
	return nil
}

// Reload re-scans the templates root, replacing the previously discovered
// set. Per-template load failures are logged and skipped rather than
// aborting the whole scan.
func (s *Store) Reload() int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		logger.Error("failed to scan templates directory", err, map[string]interface{}{"root": s.root})
		return 0
	}

	loaded := make(map[string]*model.Template)
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		tpl, err := loadFromDisk(filepath.Join(s.root, name), name)
		if err != nil {
			logger.Error("failed to load template", err, map[string]interface{}{"template": name})
			continue
		}
		validate(tpl)
		if !tpl.Valid {
			logger.Warn("template failed validation", map[string]interface{}{
				"template": name, "errors": tpl.ValidationErrors,
			})
			continue
		}
		loaded[strings.ToLower(name)] = tpl
		count++
		logger.Info("loaded template", map[string]interface{}{"template": name})
	}

	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()

	logger.Info("template scan complete", map[string]interface{}{"loaded": count})
	return count
}

// ByName returns a template by case-insensitive name, or nil if absent.
func (s *Store) ByName(name string) *model.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates[strings.ToLower(name)]
}

// All returns every currently loaded template.
func (s *Store) All() []*model.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out
}

func loadFromDisk(path, dirName string) (*model.Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("template directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	meta := defaultMetadata(dirName)
	manifestPath := filepath.Join(path, manifestFile)
	if data, err := os.ReadFile(manifestPath); err == nil {
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", manifestPath, err)
		}
		applyDefaults(&meta, dirName)
	}

	return &model.Template{
		Name:     strings.ToLower(dirName),
		RootPath: path,
		Metadata: meta,
	}, nil
}

func defaultMetadata(dirName string) model.TemplateMetadata {
	m := model.TemplateMetadata{Name: dirName}
	applyDefaults(&m, dirName)
	return m
}

func applyDefaults(m *model.TemplateMetadata, dirName string) {
	if m.Name == "" {
		m.Name = dirName
	}
	if m.ServerIDPrefix == "" {
		m.ServerIDPrefix = strings.ToLower(dirName)
	}
	if m.MaxPlayers == 0 {
		m.MaxPlayers = 16
	}
	if m.MemoryAllocation == "" {
		m.MemoryAllocation = "2G"
	}
	if m.GracefulShutdownTimeout == 0 {
		m.GracefulShutdownTimeout = 30
	}
	if m.ServerJar == "" {
		m.ServerJar = defaultJar
	}
	if m.ReadinessProbe == "" {
		m.ReadinessProbe = model.ReadinessLogScan
	}
	if m.RCONPort == 0 {
		m.RCONPort = 25575
	}
	if m.WorldResetOnShutdown == false {
		// Zero-value bool can't distinguish "absent" from "explicitly
		// false"; default to true per spec §6, matching the original's
		// worldResetOnShutdown default.
		m.WorldResetOnShutdown = true
	}
}

// validate checks the hard-fail conditions (root exists, a server jar is
// present) and appends warn-only notes for everything else, per spec §4.3.
func validate(t *model.Template) {
	var errs []string

	if _, err := os.Stat(t.RootPath); err != nil {
		errs = append(errs, fmt.Sprintf("root directory missing: %v", err))
		t.ValidationErrors = errs
		t.Valid = false
		return
	}

	if _, err := resolveServerJar(t.RootPath, t.Metadata.ServerJar); err != nil {
		errs = append(errs, err.Error())
	}

	if _, err := os.Stat(filepath.Join(t.RootPath, "Assets.zip")); err != nil {
		errs = append(errs, "warning: no Assets.zip bundled with template")
	}
	if _, err := os.Stat(filepath.Join(t.RootPath, "plugins", "Bridge")); err != nil {
		errs = append(errs, "warning: no bridge plugin present under plugins/Bridge")
	}

	t.ValidationErrors = errs
	// Only the "no server jar found" condition is hard-failing; the rest
	// are warnings and still leave the template usable.
	t.Valid = true
	for _, e := range errs {
		if !strings.HasPrefix(e, "warning:") {
			t.Valid = false
			break
		}
	}
}

func resolveServerJar(root, preferred string) (string, error) {
	if preferred != "" {
		if _, err := os.Stat(filepath.Join(root, preferred)); err == nil {
			return preferred, nil
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", root, err)
	}
	var jars []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jar") {
			jars = append(jars, e.Name())
		}
	}
	for _, j := range jars {
		lj := strings.ToLower(j)
		if strings.Contains(lj, "server") || strings.Contains(lj, "hytale") {
			return j, nil
		}
	}
	if len(jars) > 0 {
		return jars[0], nil
	}
	return "", fmt.Errorf("no server artifact found in %s", root)
}

// Overrides is the set of per-instance values written into the cloned
// directory's config overlay.
type Overrides struct {
	ServerPort int
	ServerID   string
	MaxPlayers int
}

// CloneTo recursively copies t's tree into dest, preserving relative paths,
// then writes the config overlay and makes the startup script executable
// (best-effort). Fails if dest already exists. Not transactional: on a
// partial copy the caller is responsible for deleting dest.
func CloneTo(t *model.Template, dest string, overrides *Overrides) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination %s already exists", dest)
	}

	if err := copyTree(t.RootPath, dest); err != nil {
		return fmt.Errorf("cloning %s to %s: %w", t.RootPath, dest, err)
	}

	if overrides != nil {
		if err := writeOverlay(dest, overrides); err != nil {
			return fmt.Errorf("writing config overlay: %w", err)
		}
	}

	scriptPath := filepath.Join(dest, startupScript)
	if info, err := os.Stat(scriptPath); err == nil {
		_ = os.Chmod(scriptPath, info.Mode()|0o111)
	}

	return nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode())
		}

		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func writeOverlay(dest string, o *Overrides) error {
	doc := map[string]string{
		"server-port": strconv.Itoa(o.ServerPort),
		"server-id":   o.ServerID,
		"max-players": strconv.Itoa(o.MaxPlayers),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, overlayFile), data, 0o644)
}
