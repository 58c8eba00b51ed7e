package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/larpix-data/tracklet.report/internal/api"
	"github.com/larpix-data/tracklet.report/internal/config"
	"github.com/larpix-data/tracklet.report/internal/geom"
	"github.com/larpix-data/tracklet.report/internal/pipeline"
	"github.com/larpix-data/tracklet.report/internal/reco"
	"github.com/larpix-data/tracklet.report/internal/trackdb"
	"github.com/larpix-data/tracklet.report/internal/units"
	"github.com/larpix-data/tracklet.report/internal/version"
)

var (
	dbFile      = flag.String("db", "tracklet.db", "Path to the SQLite database file")
	configFile  = flag.String("config", "", "Path to a tuning config JSON file (compiled defaults when empty)")
	layoutFile  = flag.String("layout", "", "Path to the tile layout YAML file (overrides config)")
	workerCount = flag.Int("workers", 0, "Concurrent event workers (0 = value from config)")
	runSeed     = flag.Int64("seed", 0, "Reconstruction seed (0 = value from config)")
	ingestFile  = flag.String("ingest", "", "Ingest events from a JSON fixture file")
	runReco     = flag.Bool("run", false, "Reconstruct all stored events as a new run")
	serveHTTP   = flag.Bool("serve", false, "Serve the HTTP API")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	serveUnits  = flag.String("units", units.MM, "Default length units for API responses (mm, cm, m)")
	showVersion = flag.Bool("version", false, "Print version and exit")
	devMode     = flag.Bool("dev", false, "Run in dev mode (migrations read from local files)")
)

// Main
func main() {
	// The migrate subcommand has its own flag set, dispatch before flag.Parse.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s migrate <command> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Tracklet reconstruction for pixelated charge readout\n\n")
		fmt.Fprintf(os.Stderr, "Typical workflow:\n")
		fmt.Fprintf(os.Stderr, "  1. Ingest detector events from a JSON fixture file (-ingest)\n")
		fmt.Fprintf(os.Stderr, "  2. Reconstruct tracklets from every stored event (-run)\n")
		fmt.Fprintf(os.Stderr, "  3. Serve the results over HTTP (-serve)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s migrate up\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -ingest fixtures/events.json -run\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -run -config tuning.json -seed 42\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -serve -listen :8080 -units cm\n", os.Args[0])
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("reco %s\n", version.Info())
		return
	}

	trackdb.DevMode = *devMode

	if !units.IsValidLength(*serveUnits) {
		log.Fatalf("Invalid units %q (valid: %s)", *serveUnits, units.GetValidLengthUnitsString())
	}

	if *ingestFile == "" && !*runReco && !*serveHTTP {
		flag.Usage()
		os.Exit(1)
	}

	database, err := trackdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if *ingestFile != "" {
		ingestEvents(database, *ingestFile)
	}

	if *runReco {
		runReconstruction(database)
	}

	if *serveHTTP {
		serveAPI(database)
	}
}

// runMigrate parses migrate subcommand flags and hands off to the migration
// dispatcher: reco migrate [-db path] [-dev] <command>.
func runMigrate(args []string) {
	migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateDB := migrateFlags.String("db", "tracklet.db", "Path to the SQLite database file")
	migrateDev := migrateFlags.Bool("dev", false, "Load migrations from local files instead of the embedded copy")
	migrateFlags.Parse(args)

	trackdb.DevMode = *migrateDev
	trackdb.RunMigrateCommand(migrateFlags.Args(), *migrateDB)
}

func ingestEvents(database *trackdb.DB, path string) {
	events, err := trackdb.LoadEventsFile(path)
	if err != nil {
		log.Fatalf("Failed to read events file: %v", err)
	}

	store := trackdb.NewEventStore(database.DB)
	if err := store.IngestEvents(events); err != nil {
		log.Fatalf("Failed to ingest events: %v", err)
	}
	log.Printf("✓ Ingested %d events from %s", len(events), path)
}

func loadTuning() *config.TuningConfig {
	if *configFile == "" {
		return config.EmptyTuningConfig()
	}

	cfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// buildReconstructor assembles the geometry service, extractor and stores
// into a pipeline from the effective tuning values. The effective parameter
// set is recorded on the run so any result row can be traced back to the
// values that produced it.
func buildReconstructor(database *trackdb.DB, cfg *config.TuningConfig) *pipeline.Reconstructor {
	layoutPath := cfg.GetTileLayout()
	if *layoutFile != "" {
		layoutPath = *layoutFile
	}
	layout, err := geom.LoadTileLayout(layoutPath)
	if err != nil {
		log.Fatalf("Failed to load tile layout: %v", err)
	}

	geometry, err := geom.NewService(layout, cfg.GetDriftVelocity(), cfg.GetTickDuration())
	if err != nil {
		log.Fatalf("Failed to build geometry service: %v", err)
	}

	extractor, err := reco.NewTrackExtractor(reco.ExtractorParams{
		DBSCAN: reco.DBSCANParams{
			Eps:        cfg.GetDBSCANEps(),
			MinSamples: cfg.GetDBSCANMinSamples(),
		},
		RANSAC: reco.RANSACParams{
			MinSamples:        cfg.GetRANSACMinSamples(),
			ResidualThreshold: cfg.GetRANSACResidualThreshold(),
			MaxTrials:         cfg.GetRANSACMaxTrials(),
		},
		MaxIterations: cfg.GetMaxIterations(),
	})
	if err != nil {
		log.Fatalf("Invalid extraction parameters: %v", err)
	}

	workers := cfg.GetWorkers()
	if *workerCount > 0 {
		workers = *workerCount
	}
	seed := cfg.GetSeed()
	if *runSeed != 0 {
		seed = *runSeed
	}

	runParams, err := json.Marshal(map[string]interface{}{
		"dbscan_eps":                cfg.GetDBSCANEps(),
		"dbscan_min_samples":        cfg.GetDBSCANMinSamples(),
		"ransac_min_samples":        cfg.GetRANSACMinSamples(),
		"ransac_residual_threshold": cfg.GetRANSACResidualThreshold(),
		"ransac_max_trials":         cfg.GetRANSACMaxTrials(),
		"max_iterations":            cfg.GetMaxIterations(),
		"seed":                      seed,
		"workers":                   workers,
		"drift_velocity_mm_per_us":  cfg.GetDriftVelocity(),
		"tick_duration_us":          cfg.GetTickDuration(),
		"tile_layout":               layoutPath,
	})
	if err != nil {
		log.Fatalf("Failed to marshal run parameters: %v", err)
	}

	reconstructor, err := pipeline.New(pipeline.Deps{
		Geometry:  geometry,
		Extractor: extractor,
		Runs:      trackdb.NewRunStore(database.DB),
		Sink:      trackdb.NewTrackletStore(database.DB),
		RunParams: runParams,
		Workers:   workers,
		Seed:      seed,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	return reconstructor
}

func runReconstruction(database *trackdb.DB) {
	cfg := loadTuning()
	reconstructor := buildReconstructor(database, cfg)

	events, err := trackdb.NewEventStore(database.DB).LoadEvents()
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}
	if len(events) == 0 {
		log.Println("No events to reconstruct (use -ingest to load fixtures)")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	result, err := reconstructor.Run(ctx, events)
	if err != nil {
		log.Fatalf("Reconstruction failed: %v", err)
	}
	log.Printf("✓ Run %s: %d tracklets from %d events in %v",
		result.RunID, len(result.Tracklets), len(result.Events),
		time.Since(start).Round(time.Millisecond))
}

func serveAPI(database *trackdb.DB) {
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	// Create a wait group for the HTTP server routine
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance over the tracklet database
		// and mount the API handlers
		mux := api.NewServer(database, *serveUnits).ServeMux()

		// mount the admin debugging routes (live SQL and backup download)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
