// Command chomp is the single binary that runs every role of the
// ingestion/query framework spec.md describes: a worker (claims and
// runs ingesters on a schedule), a query server (spec.md §4.9), a
// one-shot test run, or a liveness probe, selected by the flag table
// in spec.md §6. Grounded on the teacher's cmd/*/main.go shape: a
// flag.* table, a run() error entry point, log.Printf+os.Exit(1) on
// failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/btr-supply/chomp/internal/config"
	"github.com/btr-supply/chomp/internal/lifecycle"
)

func main() {
	if err := run(); err != nil {
		log.Printf("chomp: %v", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("e", ".env", "env file")
	flag.StringVar(envFile, "env", *envFile, "env file")

	verbose := flag.Bool("v", false, "debug logs")
	flag.BoolVar(verbose, "verbose", *verbose, "debug logs")

	procID := flag.String("i", "", "instance identifier")
	flag.StringVar(procID, "proc_id", *procID, "instance identifier")

	maxRetries := flag.Int("r", 0, "fetch retries (0 = config default)")
	flag.IntVar(maxRetries, "max_retries", *maxRetries, "fetch retries")

	retryCooldown := flag.Int("rc", 0, "retry base delay seconds (0 = config default)")
	flag.IntVar(retryCooldown, "retry_cooldown", *retryCooldown, "retry base delay seconds")

	ingestionTimeout := flag.Int("it", 0, "http/rpc timeout seconds (0 = config default)")
	flag.IntVar(ingestionTimeout, "ingestion_timeout", *ingestionTimeout, "http/rpc timeout seconds")

	threaded := flag.Bool("t", true, "run jobs via thread pool")
	flag.BoolVar(threaded, "threaded", *threaded, "run jobs via thread pool")

	tsdbAdapter := flag.String("a", "", "storage backend (empty = config default)")
	flag.StringVar(tsdbAdapter, "tsdb_adapter", *tsdbAdapter, "storage backend")

	monitored := flag.Bool("m", false, "inject instance-monitor ingester")
	flag.BoolVar(monitored, "monitored", *monitored, "inject instance-monitor ingester")

	uidMasksFile := flag.String("uidf", "", "uid -> human name table")
	flag.StringVar(uidMasksFile, "uid_masks_file", *uidMasksFile, "uid -> human name table")

	maxJobs := flag.Int("j", 0, "max claims per worker (0 = config default)")
	flag.IntVar(maxJobs, "max_jobs", *maxJobs, "max claims per worker")

	ingesterConfigs := flag.String("c", "./ingesters.yml", "ingester config file")
	flag.StringVar(ingesterConfigs, "ingester_configs", *ingesterConfigs, "ingester config file")

	testMode := flag.Bool("test", false, "single epoch then exit")
	flag.BoolVar(testMode, "test_mode", *testMode, "single epoch then exit")

	server := flag.Bool("s", false, "run as query server")
	flag.BoolVar(server, "server", *server, "run as query server")

	serverConfig := flag.String("sc", "", "server config file (empty = reuse ingester config file)")
	flag.StringVar(serverConfig, "server_config", *serverConfig, "server config file")

	ping := flag.Bool("pi", false, "liveness probe")
	flag.BoolVar(ping, "ping", *ping, "liveness probe")

	flag.Parse()

	cfgPath := *ingesterConfigs
	if *server && *serverConfig != "" {
		cfgPath = *serverConfig
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", cfgPath, err)
	}
	cfg.ProcID = *procID
	applyCLIOverrides(cfg, cliOverrides{
		maxRetries:       *maxRetries,
		retryCooldown:    *retryCooldown,
		ingestionTimeout: *ingestionTimeout,
		threaded:         *threaded,
		tsdbAdapter:      *tsdbAdapter,
		monitored:        *monitored,
		uidMasksFile:     *uidMasksFile,
		maxJobs:          *maxJobs,
		verbose:          *verbose,
		server:           *server,
	})

	ctrl, err := lifecycle.New(cfg)
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *ping:
		return ctrl.Ping(ctx)
	case *server:
		return ctrl.RunServer(ctx)
	default:
		return ctrl.RunWorker(ctx, *testMode)
	}
}

// cliOverrides carries the flags that win over config/env values only
// when set to a non-default value (spec.md §6 "env overrides CLI only
// when CLI=default"). threaded is the exception: it is always applied.
type cliOverrides struct {
	maxRetries       int
	retryCooldown    int
	ingestionTimeout int
	threaded         bool
	tsdbAdapter      string
	monitored        bool
	uidMasksFile     string
	maxJobs          int
	verbose          bool
	server           bool
}

func applyCLIOverrides(cfg *config.Config, o cliOverrides) {
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if o.server {
		cfg.Mode = "server"
	} else if cfg.Mode == "" {
		cfg.Mode = "worker"
	}
	if o.tsdbAdapter != "" {
		cfg.Storage.Adapter = o.tsdbAdapter
	}
	if o.uidMasksFile != "" {
		cfg.Cluster.UIDMasks = o.uidMasksFile
	}
	if o.maxJobs > 0 {
		cfg.Cluster.MaxJobs = o.maxJobs
	}
	if o.maxRetries > 0 {
		cfg.Ingestion.MaxRetries = o.maxRetries
	}
	if o.retryCooldown > 0 {
		cfg.Ingestion.RetryCooldownSec = o.retryCooldown
	}
	if o.ingestionTimeout > 0 {
		cfg.Ingestion.TimeoutSec = o.ingestionTimeout
	}
	cfg.Cluster.Threaded = o.threaded
	for i := range cfg.Ingesters {
		if o.monitored {
			cfg.Ingesters[i].Monitored = true
		}
	}
}
