package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
)

type fakeStore struct {
	data  map[string][]byte
	locks map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}, locks: map[string]bool{}}
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) SetWithTTL(ctx context.Context, key string, value []byte, ttlSec int) (bool, error) {
	s.data[key] = value
	return true, nil
}

func (s *fakeStore) SetNX(ctx context.Context, key string, value []byte, ttlSec int) (bool, error) {
	if s.locks[key] {
		return false, nil
	}
	s.locks[key] = true
	s.data[key] = value
	return true, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) (bool, error) {
	delete(s.locks, key)
	_, existed := s.data[key]
	delete(s.data, key)
	return existed, nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.data[key]
	return ok, nil
}

func (s *fakeStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func testIngester(name string) *model.Ingester {
	return model.NewIngester(model.Ingester{
		Name: name, IngesterType: model.TypeHTTPAPI, ResourceType: model.ResourceTimeSeries, Interval: "m1",
		Fields: []*model.Field{{Name: "v", Type: model.TypeFloat64}},
	})
}

func TestRegisterIngesterPopulatesPerNameAndAggregate(t *testing.T) {
	s := New(newFakeStore())
	ing := testIngester("px")
	require.NoError(t, s.RegisterIngester(context.Background(), ing))

	all, err := s.GetRegisteredIngesters(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "px")
}

func TestRegisterInstancePopulatesPerUIDAndAggregate(t *testing.T) {
	s := New(newFakeStore())
	inst := model.NewInstance("proc-1", model.ModeWorker, nil)
	require.NoError(t, s.RegisterInstance(context.Background(), inst))

	all, err := s.GetRegisteredInstances(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, inst.UID)
}

func TestGetActiveIngestersFiltersByCachePresence(t *testing.T) {
	store := newFakeStore()
	s := New(store)
	require.NoError(t, s.RegisterIngester(context.Background(), testIngester("live")))
	require.NoError(t, s.RegisterIngester(context.Background(), testIngester("stale")))

	store.data["cache:live"] = []byte("{}")

	active, err := s.GetActiveIngesters(context.Background())
	require.NoError(t, err)
	require.Contains(t, active, "live")
	require.NotContains(t, active, "stale")
}

func TestDiscoverClusterStateAggregatesBoth(t *testing.T) {
	s := New(newFakeStore())
	require.NoError(t, s.RegisterIngester(context.Background(), testIngester("px")))
	require.NoError(t, s.RegisterInstance(context.Background(), model.NewInstance("proc-1", model.ModeWorker, nil)))

	state, err := s.DiscoverClusterState(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, state.IngesterCount)
	require.Equal(t, 1, state.InstanceCount)
}

func TestRegisterIngesterLockContentionReturnsError(t *testing.T) {
	store := newFakeStore()
	store.locks[ingesterLock()] = true // pretend another instance holds it forever

	s := New(store)
	err := s.RegisterIngester(context.Background(), testIngester("px"))
	require.Error(t, err)
}
