// Package registry implements the Registry Service of spec.md §4.4: a
// cluster-wide directory of active ingesters and instances, stored in
// the cache under registry:* keys with a 24h TTL.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/btr-supply/chomp/internal/cachebus"
	"github.com/btr-supply/chomp/internal/model"
)

// TTL is the 24h expiry every registry entry carries (spec.md §3/§6).
const TTL = 24 * time.Hour

// lockTTL bounds the advisory lock used to serialize updates to the
// aggregate map (spec.md §4.4 "Locking").
const lockTTL = 10 * time.Second

// store is the slice of cachebus.Client the Registry Service depends
// on.
type store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttlSec int) (bool, error)
	SetNX(ctx context.Context, key string, value []byte, ttlSec int) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Service implements register_ingester/register_instance/
// get_registered_*/get_active_ingesters/discover_cluster_state.
type Service struct {
	cache store
}

// New binds a Registry Service to a cache client.
func New(cache store) *Service { return &Service{cache: cache} }

func ingesterKey(name string) string { return "registry:ingesters:" + name }
func instanceKey(uid string) string  { return "registry:instances:" + uid }
func aggregateIngesters() string     { return "registry:ingesters" }
func aggregateInstances() string     { return "registry:instances" }
func ingesterLock() string           { return "locks:ingesters" }

// RegisterIngester writes the per-name key and refreshes the aggregate
// map entry (spec.md §4.4 "register_ingester").
func (s *Service) RegisterIngester(ctx context.Context, ing *model.Ingester) error {
	rec, err := cachebus.EncodeRecord(ingesterDict(ing))
	if err != nil {
		return err
	}
	if _, err := s.cache.SetWithTTL(ctx, ingesterKey(ing.Name), rec, int(TTL.Seconds())); err != nil {
		return err
	}
	return s.withLock(ctx, ingesterLock(), func() error {
		agg, err := s.loadAggregate(ctx, aggregateIngesters())
		if err != nil {
			return err
		}
		agg[ing.Name] = ingesterDict(ing)
		return s.storeAggregate(ctx, aggregateIngesters(), agg)
	})
}

// RegisterInstance writes the per-uid key and refreshes the aggregate
// map entry (spec.md §4.4 "register_instance").
func (s *Service) RegisterInstance(ctx context.Context, inst *model.Instance) error {
	rec, err := cachebus.EncodeRecord(instanceDict(inst))
	if err != nil {
		return err
	}
	if _, err := s.cache.SetWithTTL(ctx, instanceKey(inst.UID), rec, int(TTL.Seconds())); err != nil {
		return err
	}
	return s.withLock(ctx, ingesterLock(), func() error {
		agg, err := s.loadAggregate(ctx, aggregateInstances())
		if err != nil {
			return err
		}
		agg[inst.UID] = instanceDict(inst)
		return s.storeAggregate(ctx, aggregateInstances(), agg)
	})
}

// GetRegisteredIngesters returns the aggregate ingester directory.
func (s *Service) GetRegisteredIngesters(ctx context.Context) (map[string]any, error) {
	return s.loadAggregate(ctx, aggregateIngesters())
}

// GetRegisteredInstances returns the aggregate instance directory.
func (s *Service) GetRegisteredInstances(ctx context.Context) (map[string]any, error) {
	return s.loadAggregate(ctx, aggregateInstances())
}

// GetActiveIngesters joins the registry with the existence of a
// cache:<name> key, i.e. an ingester that has actually produced a
// value (spec.md §4.4 "get_active_ingesters").
func (s *Service) GetActiveIngesters(ctx context.Context) (map[string]any, error) {
	all, err := s.GetRegisteredIngesters(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]any, len(all))
	for name, v := range all {
		ok, err := s.cache.Exists(ctx, cachebus.NSCache+name)
		if err != nil {
			return nil, err
		}
		if ok {
			active[name] = v
		}
	}
	return active, nil
}

// ClusterState is the discover_cluster_state aggregate (spec.md §4.4).
type ClusterState struct {
	Instances      map[string]any `json:"instances"`
	Ingesters      map[string]any `json:"ingesters"`
	InstanceCount  int            `json:"instance_count"`
	IngesterCount  int            `json:"ingester_count"`
}

// DiscoverClusterState aggregates instances + ingesters for an
// operator-facing snapshot.
func (s *Service) DiscoverClusterState(ctx context.Context) (*ClusterState, error) {
	insts, err := s.GetRegisteredInstances(ctx)
	if err != nil {
		return nil, err
	}
	ings, err := s.GetRegisteredIngesters(ctx)
	if err != nil {
		return nil, err
	}
	return &ClusterState{
		Instances:     insts,
		Ingesters:     ings,
		InstanceCount: len(insts),
		IngesterCount: len(ings),
	}, nil
}

func (s *Service) loadAggregate(ctx context.Context, key string) (map[string]any, error) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]any{}, nil
	}
	return cachebus.DecodeRecord(data)
}

func (s *Service) storeAggregate(ctx context.Context, key string, agg map[string]any) error {
	rec, err := cachebus.EncodeRecord(agg)
	if err != nil {
		return err
	}
	_, err = s.cache.SetWithTTL(ctx, key, rec, int(TTL.Seconds()))
	return err
}

// withLock acquires a short-lived advisory lock (set-if-not-exists plus
// expiry) around fn, with bounded polling on contention (spec.md §4.4
// "Locking").
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	const pollInterval = 20 * time.Millisecond
	const maxPolls = 50 // bounds contention wait to ~1s

	holder := fmt.Sprintf("lock-%d", time.Now().UnixNano())
	var acquired bool
	for i := 0; i < maxPolls; i++ {
		ok, err := s.cache.SetNX(ctx, key, []byte(holder), int(lockTTL.Seconds()))
		if err != nil {
			return err
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	if !acquired {
		return fmt.Errorf("registry: could not acquire lock %q", key)
	}
	defer s.cache.Delete(ctx, key)
	return fn()
}

func ingesterDict(ing *model.Ingester) map[string]any {
	return map[string]any{
		"name":          ing.Name,
		"type":          string(ing.IngesterType),
		"resource_type": string(ing.ResourceType),
		"interval":      string(ing.Interval),
		"id":            ing.ID(),
		"field_count":   len(ing.Fields),
	}
}

func instanceDict(inst *model.Instance) map[string]any {
	return map[string]any{
		"uid":             inst.UID,
		"name":            inst.Name,
		"hostname":        inst.Hostname,
		"pid":             inst.PID,
		"mode":            string(inst.Mode),
		"started_at":      inst.StartedAt.Unix(),
		"resources_count": inst.ResourcesCount,
	}
}
