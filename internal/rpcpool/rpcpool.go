// Package rpcpool load-balances JSON-RPC calls to a chain across a set of
// endpoints with health tracking and latency-ranked failover, shared by
// the evm_caller, svm_caller, and sui_caller ingester types (spec.md
// §4.6 "RPC pool: round-robin with health/backoff").
package rpcpool

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/btr-supply/chomp/internal/chomperr"
)

// Endpoint tracks one RPC URL's health history.
type Endpoint struct {
	URL              string
	Priority         int
	Healthy          bool
	ConsecutiveFails int
	LastCheck        time.Time
	LastLatency      time.Duration
	AvgLatency       time.Duration
}

// Config configures a Pool.
type Config struct {
	Endpoints           []string
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	MaxConsecutiveFails int
	HealthCheckBody     string // JSON-RPC request body used as the liveness probe
	HTTPClient          *http.Client

	// RequestsPerSecond caps call throughput per pool, protecting rate
	// limited RPC providers; 0 disables limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns the spec.md defaults for health probing.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		MaxConsecutiveFails: 3,
		HealthCheckBody:     `{"jsonrpc":"2.0","method":"net_version","params":[],"id":1}`,
	}
}

// Pool manages a set of RPC endpoints for one chain with health checking
// and latency-ranked failover.
type Pool struct {
	mu        sync.RWMutex
	endpoints []*Endpoint
	current   int
	cfg       Config
	client    *http.Client
	limiter   *rate.Limiter
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New builds a Pool from cfg, defaulting empty fields from DefaultConfig.
func New(cfg Config) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("rpcpool: at least one endpoint required")
	}
	def := DefaultConfig()
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.HealthCheckTimeout == 0 {
		cfg.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if cfg.MaxConsecutiveFails == 0 {
		cfg.MaxConsecutiveFails = def.MaxConsecutiveFails
	}
	if cfg.HealthCheckBody == "" {
		cfg.HealthCheckBody = def.HealthCheckBody
	}

	endpoints := make([]*Endpoint, len(cfg.Endpoints))
	for i, url := range cfg.Endpoints {
		endpoints[i] = &Endpoint{URL: strings.TrimSpace(url), Priority: i, Healthy: true}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HealthCheckTimeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Pool{endpoints: endpoints, cfg: cfg, client: client, limiter: limiter, stopCh: make(chan struct{})}, nil
}

// ParseEndpoints splits a comma-separated endpoint list, trimming blanks.
func ParseEndpoints(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Start runs the background health-check loop until ctx is done or Stop
// is called.
func (p *Pool) Start(ctx context.Context) { go p.healthCheckLoop(ctx) }

// Stop halts the health-check loop.
func (p *Pool) Stop() { p.stopOnce.Do(func() { close(p.stopCh) }) }

// Best returns the lowest-latency healthy endpoint, falling back to the
// first endpoint (marked unhealthy) when none are healthy.
func (p *Pool) Best() (*Endpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	healthy := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if ep.Healthy {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		if len(p.endpoints) == 0 {
			return nil, chomperr.ErrRPCPoolExhausted
		}
		return p.endpoints[0], fmt.Errorf("%w: no healthy endpoints, using fallback", chomperr.ErrRPCPoolExhausted)
	}

	sort.Slice(healthy, func(i, j int) bool {
		if healthy[i].AvgLatency != healthy[j].AvgLatency {
			return healthy[i].AvgLatency < healthy[j].AvgLatency
		}
		return healthy[i].Priority < healthy[j].Priority
	})
	return healthy[0], nil
}

// Next advances the round-robin cursor to the next healthy endpoint, used
// on failover from a failed call.
func (p *Pool) Next() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.current
	for i := 0; i < len(p.endpoints); i++ {
		idx := (start + i + 1) % len(p.endpoints)
		if p.endpoints[idx].Healthy {
			p.current = idx
			return p.endpoints[idx]
		}
	}
	p.current = (p.current + 1) % len(p.endpoints)
	return p.endpoints[p.current]
}

// MarkUnhealthy records a failed call against url, flipping it unhealthy
// once MaxConsecutiveFails is reached.
func (p *Pool) MarkUnhealthy(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.URL == url {
			ep.ConsecutiveFails++
			if ep.ConsecutiveFails >= p.cfg.MaxConsecutiveFails {
				ep.Healthy = false
			}
			return
		}
	}
}

// MarkHealthy records a successful call against url with its latency.
func (p *Pool) MarkHealthy(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.URL == url {
			ep.Healthy = true
			ep.ConsecutiveFails = 0
			ep.LastLatency = latency
			if ep.AvgLatency == 0 {
				ep.AvgLatency = latency
			} else {
				ep.AvgLatency = (ep.AvgLatency*7 + latency*3) / 10
			}
			return
		}
	}
}

// Endpoints returns a snapshot of every tracked endpoint's health state.
func (p *Pool) Endpoints() []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Endpoint, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = *ep
	}
	return out
}

// HealthyCount returns how many endpoints are currently healthy.
func (p *Pool) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, ep := range p.endpoints {
		if ep.Healthy {
			n++
		}
	}
	return n
}

func (p *Pool) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	p.checkAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkAll(ctx)
		}
	}
}

func (p *Pool) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ep := range p.endpoints {
		wg.Add(1)
		go func(e *Endpoint) {
			defer wg.Done()
			p.check(ctx, e)
		}(ep)
	}
	wg.Wait()
}

func (p *Pool) check(ctx context.Context, ep *Endpoint) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, strings.NewReader(p.cfg.HealthCheckBody))
	if err != nil {
		p.MarkUnhealthy(ep.URL)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.MarkUnhealthy(ep.URL)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.MarkUnhealthy(ep.URL)
		return
	}
	p.MarkHealthy(ep.URL, time.Since(start))

	p.mu.Lock()
	ep.LastCheck = time.Now()
	p.mu.Unlock()
}

// ExecuteWithFailover runs fn against the best endpoint, advancing through
// the pool on failure up to maxRetries times.
func (p *Pool) ExecuteWithFailover(ctx context.Context, maxRetries int, fn func(url string) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var ep *Endpoint
		var err error
		if attempt == 0 {
			ep, err = p.Best()
		} else {
			ep = p.Next()
		}
		if ep == nil {
			return chomperr.ErrRPCPoolExhausted
		}
		_ = err

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		callErr := fn(ep.URL)
		latency := time.Since(start)

		if callErr == nil {
			p.MarkHealthy(ep.URL, latency)
			return nil
		}
		lastErr = callErr
		p.MarkUnhealthy(ep.URL)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return fmt.Errorf("%w: %v", chomperr.ErrRPCPoolExhausted, lastErr)
}
