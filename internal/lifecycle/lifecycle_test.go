package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/config"
	"github.com/btr-supply/chomp/internal/ingest"
	"github.com/btr-supply/chomp/internal/model"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Storage.Adapter = "sqlite"
	cfg.Storage.DSN = ":memory:"
	return cfg
}

func TestNewPrefersProcIDOverArgsWhenSet(t *testing.T) {
	cfg := testConfig()
	cfg.ProcID = "fixed-proc-id"
	ctrl, err := New(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, ctrl.Instance.UID)
	require.Equal(t, model.NewInstance("fixed-proc-id", model.ModeWorker, nil).UID, ctrl.Instance.UID)
}

func TestNewRejectsUnknownStorageAdapter(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Adapter = "does-not-exist"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestFetchPolicyReflectsIngestionConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Ingestion = config.IngestionConfig{MaxRetries: 9, RetryCooldownSec: 4, TimeoutSec: 7}
	ctrl, err := New(cfg)
	require.NoError(t, err)

	policy := ctrl.fetchPolicy()
	require.Equal(t, 9, policy.MaxRetries)
	require.Equal(t, 4*time.Second, policy.Cooldown)
	require.Equal(t, 7*time.Second, policy.Timeout)
}

func TestFetcherForDispatchesKnownTypes(t *testing.T) {
	cfg := testConfig()
	ctrl, err := New(cfg)
	require.NoError(t, err)

	cases := []model.IngesterType{
		model.TypeHTTPAPI, model.TypeWSAPI, model.TypeStaticScrapper,
		model.TypeDynamicScrapper, model.TypeResp3Getter, model.TypeResp3Subscriber,
		model.TypeMonitor, model.TypeProcessor,
	}
	for _, typ := range cases {
		f, err := ctrl.fetcherFor(&model.Ingester{Name: "x", IngesterType: typ})
		require.NoErrorf(t, err, "type %s", typ)
		require.NotNilf(t, f, "type %s", typ)
	}
}

func TestFetcherForHTTPAPIUsesConfiguredPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Ingestion.MaxRetries = 1
	ctrl, err := New(cfg)
	require.NoError(t, err)

	f, err := ctrl.fetcherFor(&model.Ingester{Name: "px", IngesterType: model.TypeHTTPAPI})
	require.NoError(t, err)
	httpFetcher, ok := f.(*ingest.HTTPAPIFetcher)
	require.True(t, ok)
	require.Equal(t, 1, httpFetcher.Policy.MaxRetries)
}

func TestFetcherForRejectsUnknownType(t *testing.T) {
	cfg := testConfig()
	ctrl, err := New(cfg)
	require.NoError(t, err)

	_, err = ctrl.fetcherFor(&model.Ingester{Name: "x", IngesterType: "bogus"})
	require.Error(t, err)
}

func TestFetcherForEVMCallerRequiresEndpoints(t *testing.T) {
	cfg := testConfig()
	ctrl, err := New(cfg)
	require.NoError(t, err)

	_, err = ctrl.fetcherFor(&model.Ingester{Name: "chain", IngesterType: model.TypeEVMCaller})
	require.Error(t, err) // no rpc_endpoints configured for "chain"
}

func TestBuildIngestersResolvesProcessorDependencies(t *testing.T) {
	cfg := testConfig()
	cfg.Ingesters = []config.IngesterSpec{
		{Name: "px", Type: string(model.TypeHTTPAPI), ResourceType: string(model.ResourceTimeSeries), Interval: "m1",
			Fields: []config.FieldSpec{{Name: "usd", Type: string(model.TypeFloat64), Target: "http://x", Selector: "usd"}}},
	}
	ctrl, err := New(cfg)
	require.NoError(t, err)

	ings, err := ctrl.buildIngesters()
	require.NoError(t, err)
	require.Len(t, ings, 1)
	require.Equal(t, "px", ings[0].Name)
}
