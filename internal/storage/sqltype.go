package storage

import "github.com/btr-supply/chomp/internal/model"

// ColumnType maps a Field's declared type to a standard-SQL column type
// shared by both the postgres and sqlite adapters.
func ColumnType(t model.FieldType) string {
	switch t {
	case model.TypeInt8, model.TypeInt16, model.TypeInt32,
		model.TypeUint8, model.TypeUint16, model.TypeUint32:
		return "INTEGER"
	case model.TypeInt64, model.TypeUint64:
		return "BIGINT"
	case model.TypeFloat32, model.TypeFloat64:
		return "DOUBLE PRECISION"
	case model.TypeBool:
		return "BOOLEAN"
	case model.TypeTimestamp:
		return "TIMESTAMPTZ"
	case model.TypeBinary, model.TypeVarBinary:
		return "BYTEA"
	case model.TypeString:
		fallthrough
	default:
		return "TEXT"
	}
}

// SystemColumns returns the fixed leading columns for a resource type,
// prepended ahead of the ingester's declared PersistedFields (spec.md §3
// "system fields are not part of the declared schema").
func SystemColumns(rt model.ResourceType) []string {
	switch rt {
	case model.ResourceTimeSeries, model.ResourceSeries:
		return []string{"ts TIMESTAMPTZ NOT NULL"}
	case model.ResourceUpdate:
		return []string{
			"uid TEXT PRIMARY KEY",
			"created_at TIMESTAMPTZ NOT NULL",
			"updated_at TIMESTAMPTZ NOT NULL",
		}
	default:
		return nil
	}
}
