// Package lifecycle implements the Lifecycle Controller of spec.md
// §4.8: the worker/server startup sequence (config → instance →
// cache/storage connect → register → claim loop → schedule → run)
// and its orderly shutdown, grounded on the teacher's
// infrastructure/service/runner.go Run() bootstrap shape (config load,
// dependency wiring, signal-driven graceful shutdown) generalized away
// from its TEE/chain-specific services.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/btr-supply/chomp/internal/cachebus"
	"github.com/btr-supply/chomp/internal/chomperr"
	"github.com/btr-supply/chomp/internal/claim"
	"github.com/btr-supply/chomp/internal/config"
	"github.com/btr-supply/chomp/internal/ingest"
	"github.com/btr-supply/chomp/internal/logging"
	"github.com/btr-supply/chomp/internal/metrics"
	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/queryapi"
	"github.com/btr-supply/chomp/internal/registry"
	"github.com/btr-supply/chomp/internal/rpcpool"
	"github.com/btr-supply/chomp/internal/scheduler"
	"github.com/btr-supply/chomp/internal/storage"
	"github.com/btr-supply/chomp/internal/storage/postgres"
	"github.com/btr-supply/chomp/internal/storage/sqlite"
	"github.com/btr-supply/chomp/internal/transform"
)

// Controller holds every dependency wired at boot and drives the
// worker or server role through to shutdown.
type Controller struct {
	Cfg      *config.Config
	Log      *logging.Logger
	Cache    *cachebus.Client
	Store    storage.Adapter
	Metrics  *metrics.Metrics
	Instance *model.Instance

	claimSvc    *claim.Service
	registrySvc *registry.Service
	runner      *ingest.Runner
	sched       *scheduler.Scheduler
	rpcPools    map[string]*rpcpool.Pool
	redis       *redis.Client
}

// storageRegistry binds the two concrete backends the pack provides a
// driver for; every other enumerated name in spec.md §4.2 resolves to
// chomperr.ErrAdapterNotImplemented via storage.RegisterKnownButUnimplemented.
func storageRegistry() *storage.Registry {
	reg := storage.NewRegistry()
	reg.Register("postgres", postgres.New)
	reg.Register("sqlite", sqlite.New)
	storage.RegisterKnownButUnimplemented(reg)
	return reg
}

// New builds a Controller from cfg without yet connecting to anything
// (spec.md §4.8 step 1 "parse CLI + env; load config").
func New(cfg *config.Config) (*Controller, error) {
	log := logging.New(cfg.Mode, cfg.Logging.Level, cfg.Logging.Format)

	var masks map[string]string
	if cfg.Cluster.UIDMasks != "" {
		var err error
		masks, err = model.LoadUIDMasks(cfg.Cluster.UIDMasks)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: load uid masks: %w", err)
		}
	}
	procID := cfg.ProcID
	if procID == "" {
		procID = strings.Join(os.Args, "|")
	}
	inst := model.NewInstance(procID, model.Mode(cfg.Mode), masks)

	adapter, err := storageRegistry().Build(cfg.Storage.Adapter)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}

	return &Controller{
		Cfg:      cfg,
		Log:      log,
		Cache:    cachebus.New(cachebus.Config{Addr: cfg.Cache.Addr, Password: cfg.Cache.Password, DB: cfg.Cache.DB, Namespace: cfg.Cache.Namespace}),
		Store:    adapter,
		Metrics:  metrics.New(),
		Instance: inst,
		rpcPools: map[string]*rpcpool.Pool{},
	}, nil
}

// connect performs spec.md §4.8 steps 3-4: ping cache and storage,
// aborting unless testMode is set.
func (c *Controller) connect(ctx context.Context, testMode bool) error {
	if !c.Cache.Ping(ctx) && !testMode {
		return fmt.Errorf("lifecycle: %w: cache", chomperr.ErrDependencyUnreachable)
	}
	if err := c.Store.Connect(ctx, c.Cfg.Storage.DSN); err != nil {
		if !testMode {
			return fmt.Errorf("lifecycle: %w: storage connect: %v", chomperr.ErrDependencyUnreachable, err)
		}
	} else if err := c.Store.Ping(ctx); err != nil && !testMode {
		return fmt.Errorf("lifecycle: %w: storage ping: %v", chomperr.ErrDependencyUnreachable, err)
	}
	return nil
}

// Ping implements "ping mode": connects and pings cache + storage,
// returning nil iff both succeed (spec.md §4.8 "Ping mode").
func (c *Controller) Ping(ctx context.Context) error {
	if err := c.connect(ctx, false); err != nil {
		return err
	}
	return nil
}

// buildIngesters resolves every configured IngesterSpec to a
// model.Ingester, then applies the processor dependency-inheritance
// pass (spec.md §4.5.4).
func (c *Controller) buildIngesters() ([]*model.Ingester, error) {
	ings := make([]*model.Ingester, 0, len(c.Cfg.Ingesters))
	for _, spec := range c.Cfg.Ingesters {
		ings = append(ings, spec.ToIngester())
	}
	if err := config.ResolveProcessorDependencies(ings); err != nil {
		return nil, err
	}
	return ings, nil
}

// RunWorker executes the full worker startup sequence of spec.md §4.8
// and then blocks until ctx is cancelled (SIGINT/SIGTERM, wired by the
// caller). testMode runs exactly one epoch per claimed ingester, logs
// every field value, and returns without registering state or
// scheduling further epochs (spec.md §4.8 "Test mode").
func (c *Controller) RunWorker(ctx context.Context, testMode bool) error {
	if err := c.connect(ctx, testMode); err != nil {
		return err
	}

	ings, err := c.buildIngesters()
	if err != nil {
		return err
	}

	if !testMode {
		c.registrySvc = registry.New(c.Cache)
		if err := c.registrySvc.RegisterInstance(ctx, c.Instance); err != nil {
			return fmt.Errorf("lifecycle: register instance: %w", err)
		}
		for _, ing := range ings {
			if err := c.registrySvc.RegisterIngester(ctx, ing); err != nil {
				return fmt.Errorf("lifecycle: register ingester %q: %w", ing.Name, err)
			}
			if err := c.Store.CreateTable(ctx, ing, false); err != nil && ing.ResourceType != model.ResourceValue {
				return fmt.Errorf("lifecycle: create table %q: %w", ing.Name, err)
			}
		}
	}

	c.claimSvc = claim.New(c.Cache, c.Instance.UID)
	c.runner = ingest.NewRunner(c.Log, ingest.NewCachePublisher(c.Cache, c.Store, 0))
	mode := scheduler.ModeAsync
	if c.Cfg.Cluster.Threaded {
		mode = scheduler.ModeThreaded
	}
	c.sched = scheduler.New(mode, 4, c.Log)
	c.sched.OnJobError(func(id string, err error) {
		c.Log.Ingester(id, "").WithError(err).Warn("scheduled epoch failed")
	})

	var claimed []*model.Ingester
	if testMode {
		claimed = ings
	} else {
		err := c.claimSvc.RetryClaimCycle(ctx, ings, c.Cfg.Cluster.MaxJobs, func(ing *model.Ingester) {
			claimed = append(claimed, ing)
		})
		if err != nil && err != chomperr.ErrClaimExhausted {
			return fmt.Errorf("lifecycle: claim cycle: %w", err)
		}
	}
	c.Metrics.ActiveIngesters.Set(float64(len(claimed)))

	for _, ing := range claimed {
		fetcher, err := c.fetcherFor(ing)
		if err != nil {
			return fmt.Errorf("lifecycle: build fetcher for %q: %w", ing.Name, err)
		}
		dep := c.depResolver()
		series := c.seriesFetcher(ing)

		if testMode {
			if err := c.runner.RunEpoch(ctx, ing, fetcher, dep, series); err != nil {
				c.Log.Ingester(ing.Name, "").WithError(err).Warn("test epoch failed")
			}
			for _, f := range ing.Fields {
				c.Log.Ingester(ing.Name, f.Name).WithFields(map[string]any{"value": f.Value}).Info("test mode field value")
			}
			continue
		}

		ing := ing
		fetcher := fetcher
		if err := c.sched.AddIngester(ctx, ing, func(ctx context.Context) error {
			return c.runner.RunEpoch(ctx, ing, fetcher, dep, series)
		}, false); err != nil {
			return fmt.Errorf("lifecycle: schedule %q: %w", ing.Name, err)
		}
	}

	if testMode {
		return nil
	}

	if err := c.sched.Start(ctx); err != nil {
		return fmt.Errorf("lifecycle: start scheduler: %w", err)
	}

	<-ctx.Done()
	c.sched.Stop()
	return c.shutdown()
}

// RunServer runs the Query API role (spec.md §4.9 / "-s --server"):
// connects cache + storage read-only, builds the ingester schema from
// config, serves the Query API (and, if enabled, the Prometheus
// exporter) until ctx is cancelled, then shuts down.
func (c *Controller) RunServer(ctx context.Context) error {
	if err := c.connect(ctx, false); err != nil {
		return err
	}
	ings, err := c.buildIngesters()
	if err != nil {
		return err
	}
	c.registrySvc = registry.New(c.Cache)

	srv := queryapi.New(c.Cache, c.Store, c.registrySvc, c.Metrics, c.Log, ings)
	addr := fmt.Sprintf("%s:%d", c.Cfg.Server.Host, c.Cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var metricsSrv *http.Server
	if c.Cfg.Metrics.Enabled {
		metricsSrv = &http.Server{Addr: c.Cfg.Metrics.Addr, Handler: c.MetricsHandler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.Log.WithError(err).Warn("metrics listener failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("lifecycle: query api listener: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	return c.shutdown()
}

// shutdown releases storage/cache connections (spec.md §4.8
// "Shutdown"). Claim leases are deliberately not released; they expire
// naturally per the TTL rule.
func (c *Controller) shutdown() error {
	if err := c.Store.Close(); err != nil {
		c.Log.WithError(err).Warn("storage close failed")
	}
	if err := c.Cache.Close(); err != nil {
		c.Log.WithError(err).Warn("cache close failed")
	}
	return nil
}

// depResolver builds the transform.DepResolver every ingester's
// transformer engine uses for dotted cross-ingester references
// (spec.md §4.5.3(c)), reading the dependency's most recent cache
// record.
func (c *Controller) depResolver() transform.DepResolver {
	return func(ingester, attr string) (any, error) {
		data, ok, err := c.Cache.Get(context.Background(), cachebus.NSCache+ingester)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		record, err := cachebus.DecodeRecord(data)
		if err != nil {
			return nil, err
		}
		if attr == "idx" {
			return record, nil
		}
		return record[attr], nil
	}
}

// seriesFetcher builds ing's transform.SeriesFetcher over the storage
// adapter's range fetch (spec.md §4.5.3(d)).
func (c *Controller) seriesFetcher(ing *model.Ingester) transform.SeriesFetcher {
	return func(field string, lookbackSec int) ([]float64, error) {
		now := time.Now()
		r := storage.Range{From: now.Add(-time.Duration(lookbackSec) * time.Second), To: now}
		points, err := c.Store.Fetch(context.Background(), ing.Name, field, r, time.Second)
		if err != nil {
			return nil, err
		}
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		return values, nil
	}
}

// fetcherFor dispatches to the concrete Fetcher for ing's
// ingester_type (spec.md §4.6).
func (c *Controller) fetcherFor(ing *model.Ingester) (ingest.Fetcher, error) {
	switch ing.IngesterType {
	case model.TypeHTTPAPI:
		return ingest.NewHTTPAPIFetcherWithPolicy(c.fetchPolicy()), nil
	case model.TypeWSAPI:
		return ingest.NewWSAPIFetcher(), nil
	case model.TypeStaticScrapper:
		return ingest.NewStaticScrapperFetcherWithPolicy(c.fetchPolicy()), nil
	case model.TypeDynamicScrapper:
		return ingest.NewDynamicScrapperFetcher(nil), nil
	case model.TypeEVMCaller:
		pool, err := c.poolFor(ing.Name)
		if err != nil {
			return nil, err
		}
		return ingest.NewEVMCallerFetcher(pool), nil
	case model.TypeSVMCaller:
		pool, err := c.poolFor(ing.Name)
		if err != nil {
			return nil, err
		}
		return ingest.NewSVMCallerFetcher(pool), nil
	case model.TypeSuiCaller:
		pool, err := c.poolFor(ing.Name)
		if err != nil {
			return nil, err
		}
		return ingest.NewSuiCallerFetcher(pool), nil
	case model.TypeResp3Getter:
		return ingest.NewResp3GetterFetcher(c.redisClient()), nil
	case model.TypeResp3Subscriber:
		return ingest.NewResp3SubscriberFetcher(c.redisClient()), nil
	case model.TypeMonitor:
		return ingest.NewMonitorFetcher(c.Instance.Lat, c.Instance.Lon), nil
	case model.TypeProcessor:
		return ingest.NewProcessorFetcher(), nil
	default:
		return nil, fmt.Errorf("lifecycle: unknown ingester type %q", ing.IngesterType)
	}
}

// fetchPolicy builds the ingest.FetchPolicy every HTTP-style fetcher
// uses from config/CLI overrides (spec.md §6 "-r/-rc/-it").
func (c *Controller) fetchPolicy() ingest.FetchPolicy {
	return ingest.FetchPolicy{
		MaxRetries: c.Cfg.Ingestion.MaxRetries,
		Cooldown:   time.Duration(c.Cfg.Ingestion.RetryCooldownSec) * time.Second,
		Timeout:    time.Duration(c.Cfg.Ingestion.TimeoutSec) * time.Second,
	}
}

// poolFor lazily builds (and caches) the rpcpool.Pool for a chain
// ingester from its configured endpoint list (spec.md §5 "one
// endpoint list per chain in shared state"). chomp keys pools by
// ingester name rather than a separate chain registry: every
// evm/svm/sui ingester declares its own endpoint list, which is the
// simplification the RPCEndpoints config field exists for.
func (c *Controller) poolFor(ingesterName string) (*rpcpool.Pool, error) {
	if pool, ok := c.rpcPools[ingesterName]; ok {
		return pool, nil
	}
	var endpoints []string
	for _, spec := range c.Cfg.Ingesters {
		if spec.Name == ingesterName {
			endpoints = spec.RPCEndpoints
			break
		}
	}
	cfg := rpcpool.DefaultConfig()
	cfg.Endpoints = endpoints
	pool, err := rpcpool.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: build rpc pool for %q: %w", ingesterName, err)
	}
	pool.Start(context.Background())
	c.rpcPools[ingesterName] = pool
	return pool, nil
}

// redisClient lazily builds the go-redis client the resp3_getter and
// resp3_subscriber fetchers share. It is a client of its own, separate
// from the cache bus's connection pool.
func (c *Controller) redisClient() *redis.Client {
	if c.redis == nil {
		c.redis = redis.NewClient(&redis.Options{Addr: c.Cfg.Cache.Addr, Password: c.Cfg.Cache.Password, DB: c.Cfg.Cache.DB})
	}
	return c.redis
}

// MetricsHandler exposes the /metrics endpoint for the server role to
// mount alongside the Query API.
func (c *Controller) MetricsHandler() http.Handler {
	return metrics.Handler()
}
