package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"github.com/pressly/goose"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/streamsense/observability/internal/alerting"
	"github.com/streamsense/observability/internal/collectors"
	"github.com/streamsense/observability/internal/configs"
	"github.com/streamsense/observability/internal/exporter"
	"github.com/streamsense/observability/internal/health"
	"github.com/streamsense/observability/internal/journal"
	"github.com/streamsense/observability/internal/probes"
	"github.com/streamsense/observability/internal/registry"
	"github.com/streamsense/observability/internal/runner"
	"github.com/streamsense/observability/internal/worker"

	httpHandlers "github.com/streamsense/observability/internal/handlers/http"
	httpMiddlewares "github.com/streamsense/observability/internal/middlewares/http"
	dbConfig "github.com/streamsense/observability/internal/configs/db"
	dbSink "github.com/streamsense/observability/internal/sinks/db"
	webNotifier "github.com/streamsense/observability/internal/notifiers/web"
	webSink "github.com/streamsense/observability/internal/sinks/web"
)

// Application entry point.
func main() {
	printBuildInfo()

	cfg, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

// Build information variables.
// These are set during build time via ldflags.
var (
	buildVersion string = "N/A"
	buildDate    string = "N/A"
	buildCommit  string = "N/A"
)

// printBuildInfo prints the build version, date, and commit hash to stdout.
func printBuildInfo() {
	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}

var (
	addr              string
	snapshotInterval  int
	batchMaxSize      int
	batchMaxAge       int
	exportRetries     int
	probeTimeout      int
	databaseDSN       string
	sinkURL           string
	notifyURL         string
	rulesPath         string
	journalPath       string
	storeInterval     int
	restore           bool
	maxCPUPercent     float64
	maxMemPercent     float64
	maxStageLatencyMS float64
	minQualityScore   float64
	configFilePath    string
	migrationsDir     string = "migrations"
)

// init sets up command-line flags.
func init() {
	pflag.StringVarP(&addr, "address", "a", "localhost:8080", "HTTP listen address")
	pflag.IntVarP(&snapshotInterval, "snapshot-interval", "s", 10, "registry scrape interval in seconds")
	pflag.IntVarP(&batchMaxSize, "batch-max-size", "b", 500, "export batch flush threshold in records")
	pflag.IntVarP(&batchMaxAge, "batch-max-age", "g", 30, "export batch flush threshold in seconds")
	pflag.IntVar(&exportRetries, "export-retries", 5, "send attempts per export batch")
	pflag.IntVarP(&probeTimeout, "probe-timeout", "p", 5, "per-probe readiness timeout in seconds")
	pflag.StringVarP(&databaseDSN, "database-dsn", "d", "", "SQL sink DSN (selects the SQL sink when set)")
	pflag.StringVarP(&sinkURL, "sink-url", "u", "", "time-series backend base URL")
	pflag.StringVarP(&notifyURL, "notify-url", "n", "", "alert webhook base URL")
	pflag.StringVarP(&rulesPath, "rules", "r", "", "path to alert rules JSON file")
	pflag.StringVarP(&journalPath, "journal", "j", "", "snapshot journal file path")
	pflag.IntVarP(&storeInterval, "store-interval", "i", 0, "journal interval in seconds (0 = on shutdown only)")
	pflag.BoolVar(&restore, "restore", false, "restore counters and gauges from the journal on start")
	pflag.Float64Var(&maxCPUPercent, "max-cpu", 0, "readiness CPU usage limit in percent (0 disables)")
	pflag.Float64Var(&maxMemPercent, "max-mem", 0, "readiness memory usage limit in percent (0 disables)")
	pflag.Float64Var(&maxStageLatencyMS, "max-stage-latency", 0, "stage latency warning threshold in ms (0 disables)")
	pflag.Float64Var(&minQualityScore, "min-quality", 0, "signal quality warning threshold (0 disables)")
	pflag.StringVarP(&configFilePath, "config", "c", "", "path to JSON config file")
}

func parseFlags() (*configs.ServerConfig, error) {
	pflag.Parse()

	if len(pflag.Args()) > 0 {
		return nil, errors.New("unknown flags or arguments are provided")
	}

	if env := os.Getenv("CONFIG"); env != "" && configFilePath == "" {
		configFilePath = env
	}

	var fileCfg configs.ServerConfig
	if configFilePath != "" {
		cfgBytes, err := os.ReadFile(configFilePath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := json.Unmarshal(cfgBytes, &fileCfg); err != nil {
			return nil, fmt.Errorf("error parsing config JSON: %w", err)
		}
	}

	// env vars take precedence over the config file, the config file over
	// flags; flag defaults sit at the bottom
	return configs.NewServerConfig(
		configs.WithAddress(os.Getenv("ADDRESS"), fileCfg.Address, addr),
		configs.WithSnapshotInterval(envInt("SNAPSHOT_INTERVAL"), fileCfg.SnapshotInterval, snapshotInterval),
		configs.WithBatchMaxSize(envInt("BATCH_MAX_SIZE"), fileCfg.BatchMaxSize, batchMaxSize),
		configs.WithBatchMaxAge(envInt("BATCH_MAX_AGE"), fileCfg.BatchMaxAge, batchMaxAge),
		configs.WithExportRetries(envInt("EXPORT_RETRIES"), fileCfg.ExportRetries, exportRetries),
		configs.WithProbeTimeout(envInt("PROBE_TIMEOUT"), fileCfg.ProbeTimeout, probeTimeout),
		configs.WithDatabaseDSN(os.Getenv("DATABASE_DSN"), fileCfg.DatabaseDSN, databaseDSN),
		configs.WithSinkURL(os.Getenv("SINK_URL"), fileCfg.SinkURL, sinkURL),
		configs.WithNotifyURL(os.Getenv("NOTIFY_URL"), fileCfg.NotifyURL, notifyURL),
		configs.WithRulesPath(os.Getenv("RULES_PATH"), fileCfg.RulesPath, rulesPath),
		configs.WithJournalPath(os.Getenv("JOURNAL_PATH"), fileCfg.JournalPath, journalPath),
		configs.WithStoreInterval(envInt("STORE_INTERVAL"), fileCfg.StoreInterval, storeInterval),
		configs.WithRestore(os.Getenv("RESTORE") == "true", fileCfg.Restore, restore),
		configs.WithMaxStageLatencyMS(envFloat("MAX_STAGE_LATENCY_MS"), fileCfg.MaxStageLatencyMS, maxStageLatencyMS),
		configs.WithMinQualityScore(envFloat("MIN_QUALITY_SCORE"), fileCfg.MinQualityScore, minQualityScore),
	)
}

func envInt(name string) int {
	v, _ := strconv.Atoi(os.Getenv(name))
	return v
}

func envFloat(name string) float64 {
	v, _ := strconv.ParseFloat(os.Getenv(name), 64)
	return v
}

// run wires the observability core together and serves it until ctx is done.
func run(ctx context.Context, cfg *configs.ServerConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := registry.New()

	signalCollector, err := collectors.NewSignalCollector(reg, collectors.SignalThresholds{
		MaxStageLatencyMS: cfg.MaxStageLatencyMS,
		MinQualityScore:   cfg.MinQualityScore,
	}, logger)
	if err != nil {
		return err
	}
	if _, err := collectors.NewDeviceCollector(reg, logger); err != nil {
		return err
	}
	if _, err := collectors.NewInferenceCollector(reg, collectors.InferenceThresholds{}, logger); err != nil {
		return err
	}

	healthService := health.NewService(logger)
	perProbeTimeout := time.Duration(cfg.ProbeTimeout) * time.Second
	if maxCPUPercent > 0 || maxMemPercent > 0 {
		healthService.Register("system_resources", probes.NewSystemResources(maxCPUPercent, maxMemPercent), perProbeTimeout)
	}

	var sink exporter.Sink
	switch {
	case cfg.DatabaseDSN != "":
		dbConn, err := dbConfig.New("pgx", cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer dbConn.Close()
		if err := goose.Up(dbConn.DB, migrationsDir); err != nil {
			return err
		}
		sink = dbSink.NewSink(dbConn)
		healthService.Register("sink_database", probes.NewDatabasePing(dbConn), perProbeTimeout)

	case cfg.SinkURL != "":
		client := resty.New().SetBaseURL(cfg.SinkURL)
		sink = webSink.NewSink(client)
		healthService.Register("sink_backend", probes.NewSinkReachable(client), perProbeTimeout)

	default:
		return errors.New("either --database-dsn or --sink-url is required")
	}

	exp, err := exporter.New(reg, sink, exporter.Config{
		SnapshotInterval: time.Duration(cfg.SnapshotInterval) * time.Second,
		BatchMaxSize:     cfg.BatchMaxSize,
		BatchMaxAge:      time.Duration(cfg.BatchMaxAge) * time.Second,
		MaxRetries:       cfg.ExportRetries,
	}, logger)
	if err != nil {
		return err
	}

	r := runner.New()
	r.AddWorker(exp)

	if cfg.RulesPath != "" {
		if cfg.NotifyURL == "" {
			return errors.New("--notify-url is required when alert rules are configured")
		}
		rules, err := configs.LoadRules(cfg.RulesPath)
		if err != nil {
			return err
		}
		notifier := webNotifier.NewNotifier(resty.New().SetBaseURL(cfg.NotifyURL))
		evaluator, err := alerting.NewEvaluator(rules, reg, notifier, logger)
		if err != nil {
			return err
		}
		r.AddWorker(evaluator)
	}

	if cfg.JournalPath != "" {
		var ticker *time.Ticker
		if cfg.StoreInterval > 0 {
			ticker = time.NewTicker(time.Duration(cfg.StoreInterval) * time.Second)
			defer ticker.Stop()
		}
		journalWorker := worker.NewJournalWorker(
			cfg.Restore,
			ticker,
			reg,
			reg,
			journal.NewReader(cfg.JournalPath),
			journal.NewWriter(cfg.JournalPath),
		)
		r.AddWorker(journalWorker)
	}

	router := chi.NewRouter()
	router.Use(httpMiddlewares.LoggingMiddleware(logger))
	router.Use(httpMiddlewares.GzipMiddleware)

	router.Get("/healthz", httpHandlers.NewLivenessHandler(healthService))
	router.Get("/readyz", httpHandlers.NewReadinessHandler(healthService))
	router.Get("/metrics", httpHandlers.NewSnapshotHandler(reg))
	router.Post("/ingest/latency", httpHandlers.NewLatencyIngestHandler(signalCollector))
	router.Post("/ingest/quality", httpHandlers.NewQualityIngestHandler(signalCollector))
	router.Post("/ingest/gauge", httpHandlers.NewGaugeIngestHandler(reg))

	r.AddHTTPServer(&http.Server{Addr: cfg.Address, Handler: router})

	return r.Run(ctx)
}
