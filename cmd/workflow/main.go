// Command workflow loads a workflow manifest, starts the engine, runs one sequential pass,
// then keeps the engine running until a shutdown signal arrives and stops it cleanly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coachpo/streamflow/core/engine"
	wfnode "github.com/coachpo/streamflow/core/node"
	"github.com/coachpo/streamflow/internal/config"
	"github.com/coachpo/streamflow/internal/nodes/arithmetic"
	"github.com/coachpo/streamflow/internal/nodes/decimalmath"
	"github.com/coachpo/streamflow/internal/nodes/httpclient"
	"github.com/coachpo/streamflow/internal/nodes/jstransform"
	"github.com/coachpo/streamflow/internal/nodes/pgsink"
	"github.com/coachpo/streamflow/internal/nodes/wsstream"
	"github.com/coachpo/streamflow/lib/async"
	"github.com/coachpo/streamflow/lib/telemetry"
)

const (
	defaultManifestPath = "config/workflow.yaml"
	shutdownTimeout     = 30 * time.Second
	externalPoolWorkers = 8
	externalPoolQueue   = 64
)

func main() {
	manifestPath, telemetryCfg := parseFlags()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "workflow ", log.LstdFlags|log.Lmicroseconds)

	mp, shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		logger.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Printf("shutdown telemetry: %v", err)
		}
	}()
	metrics, err := telemetry.NewMetrics(mp)
	if err != nil {
		logger.Fatalf("init metrics: %v", err)
	}

	manifest, err := config.Load(manifestPath)
	if err != nil {
		logger.Fatalf("load manifest: %v", err)
	}
	graphCfg, err := manifest.ToGraphConfig()
	if err != nil {
		logger.Fatalf("build graph config: %v", err)
	}

	pool, err := async.NewPool(externalPoolWorkers, externalPoolQueue)
	if err != nil {
		logger.Fatalf("initialise external dispatch pool: %v", err)
	}
	defer pool.Close()

	eng := engine.New(pool, func(level, nodeID, message string) {
		if nodeID != "" {
			logger.Printf("[%s] %s: %s", level, nodeID, message)
		} else {
			logger.Printf("[%s] %s", level, message)
		}
	})
	eng.SetMetrics(metrics)
	registerNodeTypes(eng)

	if err := eng.LoadConfig(graphCfg); err != nil {
		logger.Fatalf("load graph: %v", err)
	}
	logger.Printf("workflow %q loaded: %d nodes, %d connections", graphCfg.Name, len(graphCfg.Nodes), len(graphCfg.Connections))

	if err := eng.Start(ctx); err != nil {
		logger.Fatalf("start engine: %v", err)
	}
	logger.Print("engine started")

	if err := eng.Execute(ctx, nil); err != nil {
		logger.Printf("sequential pass failed: %v", err)
	} else {
		logger.Print("sequential pass completed")
	}

	printStatus(logger, eng)

	logger.Print("awaiting shutdown signal")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Printf("stop engine: %v", err)
	}
	logger.Print("shutdown complete")
}

func parseFlags() (string, telemetry.Config) {
	path := flag.String("manifest", "", fmt.Sprintf("Path to workflow manifest (default: %s)", defaultManifestPath))
	serviceName := flag.String("telemetry-service-name", "", "Service name reported on exported metrics (default: workflow-engine)")
	otlpEndpoint := flag.String("telemetry-otlp-endpoint", "", "OTLP HTTP endpoint for metric export; empty disables export")
	flag.Parse()
	manifestPath := defaultManifestPath
	if *path != "" {
		manifestPath = *path
	}
	return manifestPath, telemetry.Config{ServiceName: *serviceName, OTLPEndpoint: *otlpEndpoint}
}

func registerNodeTypes(eng *engine.Engine) {
	eng.RegisterNodeType("arithmetic.constant", arithmetic.NewConstant)
	eng.RegisterNodeType("arithmetic.binary_op", arithmetic.NewBinaryOp)
	eng.RegisterNodeType("httpclient.fetch", httpclient.NewFetch)
	eng.RegisterNodeType("wsstream.source", wsstream.NewSource)
	eng.RegisterNodeType("jstransform.transform", jstransform.NewTransform)
	eng.RegisterNodeType("decimalmath.sum", decimalmath.NewSum)
	eng.RegisterNodeType("pgsink.stream", pgsink.NewStreamingSink)
	eng.RegisterNodeType("pgsink.value", pgsink.NewOneShotSink)
}

func printStatus(logger *log.Logger, eng *engine.Engine) {
	state, statuses := eng.Status()
	logger.Printf("engine state: %s", state)
	for id, status := range statuses {
		if status == wfnode.StatusFailed {
			logger.Printf("node %s: %s", id, status)
		}
	}
}
