package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/numdrassl/servermanager/internal/api"
	"github.com/numdrassl/servermanager/internal/orchestrator/events"
	"github.com/numdrassl/servermanager/internal/orchestrator/facade"
	"github.com/numdrassl/servermanager/internal/orchestrator/metrics"
	"github.com/numdrassl/servermanager/pkg/logger"
)

func main() {
	logLevel := parseLogLevel(os.Getenv("LOG_LEVEL"))
	structured := os.Getenv("LOG_JSON") == "true"
	logger.SetDefault(logger.NewLogger(logLevel, os.Stdout, structured))

	root := os.Getenv("SERVERMANAGER_ROOT")
	if root == "" {
		root = "./servers"
	}

	logger.Info("starting orchestrator", map[string]interface{}{"root": root})

	manager, err := facade.Initialize(root)
	if err != nil {
		logger.Fatal("failed to initialize orchestrator", err, nil)
	}

	unsubscribe := manager.Bus.Subscribe(metrics.Subscriber())
	defer unsubscribe()

	var influxSink *events.InfluxSink
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		sink, err := events.NewInfluxSink(events.InfluxConfig{
			URL:    url,
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		})
		if err != nil {
			logger.Warn("failed to initialize influxdb sink, continuing without it", map[string]interface{}{"error": err.Error()})
		} else {
			influxSink = sink
			influxUnsubscribe := manager.Bus.Subscribe(sink.Subscriber())
			defer influxUnsubscribe()
			logger.Info("influxdb event sink enabled", nil)
		}
	}

	manager.LoadStaticServers(context.Background())

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logger.Warn("JWT_SECRET not set, operator API tokens cannot be validated correctly", nil)
	}

	router := api.SetupRouter(manager, jwtSecret, os.Getenv("DEBUG") == "true")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := fmt.Sprintf(":%s", port)

	go func() {
		logger.Info("operator API listening", map[string]interface{}{"address": addr})
		if err := router.Run(addr); err != nil {
			logger.Fatal("operator API server failed", err, nil)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 65*time.Second)
	defer cancel()
	manager.Shutdown(ctx)

	if influxSink != nil {
		influxSink.Close()
	}

	logger.Info("shutdown complete", nil)
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logger.DEBUG
	case "INFO":
		return logger.INFO
	case "WARN":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	case "FATAL":
		return logger.FATAL
	default:
		return logger.INFO
	}
}
