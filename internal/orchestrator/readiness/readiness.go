// Package readiness isolates the "is this freshly started backend ready to
// accept players" decision behind a predicate, per spec §9's explicit note
// that the log-substring heuristic is brittle and should be substitutable.
package readiness

import (
	"strings"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
)

// readyMarkers are the literal substrings the default predicate scans for,
// per spec §4.4.
var readyMarkers = []string{"Server started", "Done", "Ready", "Listening on"}

// Predicate decides, from the last n captured log lines, whether an
// instance has become ready.
type Predicate interface {
	Ready(recentLogs []string) bool
}

// LogScanPredicate is the spec's default: ready once any of the last 50
// captured lines contains one of the fixed marker substrings.
type LogScanPredicate struct{}

func (LogScanPredicate) Ready(recentLogs []string) bool {
	for _, line := range recentLogs {
		for _, marker := range readyMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}

// ForTemplate selects the predicate a template's manifest declares,
// defaulting to LogScanPredicate when unset or unrecognised.
func ForTemplate(kind model.ReadinessProbeKind, rcon Predicate) Predicate {
	if kind == model.ReadinessRCON && rcon != nil {
		return rcon
	}
	return LogScanPredicate{}
}
