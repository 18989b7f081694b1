package readiness

import (
	"fmt"
	"time"

	"github.com/gorcon/rcon"
)

// RCONPredicate is the optional alternative readiness/health signal spec §9
// anticipates: instead of scanning captured log lines, it asks the child
// process directly over RCON. Selected per template via the manifest's
// readinessProbe field. Grounded on the teacher's
// internal/monitoring/rcon_client.go, the one of its two RCON clients that
// uses the real github.com/gorcon/rcon library rather than a hand-rolled
// protocol implementation.
type RCONPredicate struct {
	Host     string
	Port     int
	Password string
}

// Ready ignores recentLogs entirely and instead probes the server directly;
// it satisfies the Predicate interface so it can be swapped in for
// LogScanPredicate without disturbing the caller.
func (p RCONPredicate) Ready(recentLogs []string) bool {
	conn, err := rcon.Dial(fmt.Sprintf("%s:%d", p.Host, p.Port), p.Password, rcon.SetDialTimeout(2*time.Second))
	if err != nil {
		return false
	}
	defer conn.Close()

	_, err = conn.Execute("list")
	return err == nil
}
