package ingest

import (
	"context"

	"github.com/btr-supply/chomp/internal/model"
)

// ProcessorFetcher is the Fetcher for the "processor" ingester type
// (spec.md §4.6.11): it has no native fetch strategy of its own.
// Every field value it produces comes from a transformer expression
// containing a dotted cross-ingester reference ("{ing.field}"),
// resolved against the cache by the shared transformer engine's
// DepResolver (internal/transform, wired once at Runner construction)
// during the epoch's transform step, not during fetch.
type ProcessorFetcher struct{}

// NewProcessorFetcher builds a no-op fetcher for processor ingesters.
func NewProcessorFetcher() *ProcessorFetcher { return &ProcessorFetcher{} }

func (f *ProcessorFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	return nil
}
