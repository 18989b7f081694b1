// Package metrics exposes the orchestrator's fleet state and lifecycle
// events as Prometheus series, grounded on the teacher's
// internal/monitoring/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
	"github.com/numdrassl/servermanager/internal/orchestrator/registry"
)

var (
	InstanceStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "servermanager_instance_status",
			Help: "Instance status (0=created, 1=starting, 2=running, 3=stopping, 4=stopped, 5=failed, 6=unhealthy)",
		},
		[]string{"server_id", "type", "template"},
	)

	InstancePlayers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "servermanager_instance_players",
			Help: "Current connected player count",
		},
		[]string{"server_id"},
	)

	FleetTotalInstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "servermanager_fleet_total_instances",
			Help: "Total number of instances currently tracked",
		},
	)

	FleetRunningInstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "servermanager_fleet_running_instances",
			Help: "Number of instances currently RUNNING",
		},
	)

	FleetTotalPlayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "servermanager_fleet_total_players",
			Help: "Total connected players across the fleet",
		},
	)

	SpawnTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servermanager_spawns_total",
			Help: "Total number of spawn attempts",
		},
		[]string{"type", "outcome"},
	)

	ShutdownTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servermanager_shutdowns_total",
			Help: "Total number of shutdowns, by reason",
		},
		[]string{"reason"},
	)

	HealthProbeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servermanager_health_transitions_total",
			Help: "Total number of instance status transitions observed by the health probe",
		},
		[]string{"from", "to"},
	)
)

// StatusToFloat converts a model.Status to the numeric value used by
// InstanceStatus.
func StatusToFloat(status model.Status) float64 {
	switch status {
	case model.Created:
		return 0
	case model.Starting:
		return 1
	case model.Running:
		return 2
	case model.Stopping:
		return 3
	case model.Stopped:
		return 4
	case model.Failed:
		return 5
	case model.Unhealthy:
		return 6
	default:
		return -1
	}
}

// ObserveFleet refreshes the gauge series from a registry snapshot; call
// this on a short interval, or once per request if scraped directly
// without a background refresher.
func ObserveFleet(instances []*model.Instance, stats registry.Stats) {
	for _, inst := range instances {
		templateName := ""
		if inst.Template != nil {
			templateName = inst.Template.Name
		}
		InstanceStatus.WithLabelValues(inst.ServerID, string(inst.Type), templateName).Set(StatusToFloat(inst.Status))
		InstancePlayers.WithLabelValues(inst.ServerID).Set(float64(inst.PlayerCount()))
	}
	FleetTotalInstances.Set(float64(stats.Total))
	FleetRunningInstances.Set(float64(stats.RunningCount))
	FleetTotalPlayers.Set(float64(stats.TotalPlayers))
}
