package storage

import (
	"fmt"

	"github.com/btr-supply/chomp/internal/chomperr"
)

func unimplementedErr(name string) error {
	return fmt.Errorf("%w: adapter %q", chomperr.ErrAdapterNotImplemented, name)
}

// RegisterKnownButUnimplemented registers every storage backend named in
// spec.md that has no driver in chomp's dependency pack (no ClickHouse,
// MongoDB, InfluxDB, TDengine, QuestDB, DuckDB, or kdb+/KX client exists
// anywhere in the example corpus). Each resolves to an Adapter whose
// every method except Close returns ErrAdapterNotImplemented, so a config naming one
// fails loudly at boot rather than silently dropping data.
func RegisterKnownButUnimplemented(reg *Registry) {
	for _, name := range []string{"clickhouse", "mongodb", "influxdb", "tdengine", "questdb", "duckdb", "kx"} {
		name := name
		reg.Register(name, func() Adapter { return stubAdapter{name: name} })
	}
}
