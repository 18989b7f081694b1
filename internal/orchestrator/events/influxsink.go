package events

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxSink is an optional time-series sink for emitted events, wired in
// alongside the in-memory Bus so fleet history survives orchestrator
// restarts for analytics purposes. Grounded on the teacher's
// internal/storage/influxdb_client.go write path.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// InfluxConfig holds connection settings for the optional sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxSink connects to InfluxDB and returns a sink ready for
// Subscribe-ing to a Bus.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to influxdb: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}, nil
}

// Subscriber returns a Subscriber suitable for Bus.Subscribe that writes
// every event as a "server_event" point, tagged by type and server id.
func (s *InfluxSink) Subscriber() Subscriber {
	return func(evt Event) {
		serverID, fields := flatten(evt)
		p := influxdb2.NewPoint(
			"server_event",
			map[string]string{
				"event_id":   evt.ID,
				"event_type": string(evt.Type),
				"server_id":  serverID,
			},
			fields,
			evt.Timestamp,
		)
		s.writeAPI.WritePoint(p)
	}
}

func flatten(evt Event) (serverID string, fields map[string]interface{}) {
	fields = make(map[string]interface{})
	switch p := evt.Payload.(type) {
	case ServerSpawn:
		serverID = p.ServerID
		fields["type"] = p.Type
		fields["port"] = p.Port
		fields["template"] = p.TemplateName
	case ServerShutdown:
		serverID = p.ServerID
		fields["reason"] = string(p.Reason)
		fields["forced"] = p.Forced
	case ServerHealth:
		serverID = p.ServerID
		fields["previous"] = p.Previous
		fields["new"] = p.New
		fields["message"] = p.Message
	}
	return serverID, fields
}

// Flush blocks until every pending write has been sent.
func (s *InfluxSink) Flush() {
	s.writeAPI.Flush()
}

// Close flushes and releases the underlying client.
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
