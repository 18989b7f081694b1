package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultStartupScript = `#!/bin/bash
MEMORY="${MEMORY:-2G}"
SERVER_JAR="${SERVER_JAR:-HytaleServer.jar}"

java -Xms${MEMORY} -Xmx${MEMORY} \
    -XX:+UseG1GC \
    -XX:+ParallelRefProcEnabled \
    -XX:MaxGCPauseMillis=200 \
    -jar "${SERVER_JAR}" \
    "$@"
`

// Create scaffolds a new template directory with a default manifest, empty
// plugins/ and world/ directories, and an executable startup script. It
// writes no config overlay document; CloneTo writes one per instance.
// Supplemented from the original's TemplateManager.createTemplate; enriches
// the Template Store without touching any spec Non-goal.
func (s *Store) Create(name string) error {
	if name == "" {
		return fmt.Errorf("template name must not be empty")
	}

	path := filepath.Join(s.root, name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("template already exists: %s", name)
	}

	if err := os.MkdirAll(filepath.Join(path, "plugins"), 0o755); err != nil {
		return fmt.Errorf("creating template directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "world"), 0o755); err != nil {
		return fmt.Errorf("creating template directory: %w", err)
	}

	meta := defaultMetadata(name)
	meta.ServerIDPrefix = strings.ToLower(name)
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshalling manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(path, startupScript), []byte(defaultStartupScript), 0o755); err != nil {
		return fmt.Errorf("writing startup script: %w", err)
	}

	s.Reload()
	return nil
}
