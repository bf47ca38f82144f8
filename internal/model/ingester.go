package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// IngesterType selects the per-source fetch strategy (spec.md §3).
type IngesterType string

const (
	TypeHTTPAPI         IngesterType = "http_api"
	TypeWSAPI           IngesterType = "ws_api"
	TypeStaticScrapper  IngesterType = "static_scrapper"
	TypeDynamicScrapper IngesterType = "dynamic_scrapper"
	TypeEVMCaller       IngesterType = "evm_caller"
	TypeSVMCaller       IngesterType = "svm_caller"
	TypeSuiCaller       IngesterType = "sui_caller"
	TypeResp3Getter     IngesterType = "resp3_getter"
	TypeResp3Subscriber IngesterType = "resp3_subscriber"
	TypeProcessor       IngesterType = "processor"
	TypeMonitor         IngesterType = "monitor"
)

// ResourceType controls the system-field prefix and persistence policy
// (spec.md GLOSSARY "Resource type").
type ResourceType string

const (
	ResourceTimeSeries ResourceType = "timeseries"
	ResourceUpdate     ResourceType = "update"
	ResourceSeries     ResourceType = "series"
	ResourceValue      ResourceType = "value" // cache-only, never persisted
)

// Ingester is the unit of scheduling (spec.md §3 "Ingester").
type Ingester struct {
	Name          string       `yaml:"name" json:"name"`
	IngesterType  IngesterType `yaml:"type" json:"type"`
	ResourceType  ResourceType `yaml:"resource_type" json:"resource_type"`
	Interval      Interval     `yaml:"interval" json:"interval"`
	Fields        []*Field     `yaml:"fields" json:"fields"`
	Probability   float64      `yaml:"probability" json:"probability"`
	PreTransform  string       `yaml:"pre_transformer" json:"pre_transformer,omitempty"`
	Monitored     bool         `yaml:"monitored" json:"monitored,omitempty"`

	Started      time.Time `yaml:"-" json:"started,omitempty"`
	LastIngested time.Time `yaml:"-" json:"last_ingested,omitempty"`
}

// NewIngester applies defaults (probability=1.0) and prepends the
// resource-type-specific system fields, matching the TimeSeriesIngester
// / UpdateIngester / MonitorIngester subtypes of spec.md §3.
func NewIngester(i Ingester) *Ingester {
	ing := i
	if ing.Probability == 0 {
		ing.Probability = 1.0
	}
	var system []*Field
	switch ing.ResourceType {
	case ResourceTimeSeries, ResourceSeries:
		system = []*Field{{Name: "ts", Type: TypeTimestamp, Readonly: false}}
	case ResourceUpdate:
		system = []*Field{
			{Name: "created_at", Type: TypeTimestamp, Readonly: true},
			{Name: "updated_at", Type: TypeTimestamp, Readonly: false},
			{Name: "uid", Type: TypeString, Readonly: true},
		}
	}
	if ing.Monitored || ing.IngesterType == TypeMonitor {
		system = append(system, monitorFields()...)
	}
	ing.Fields = append(system, ing.Fields...)
	return &ing
}

func monitorFields() []*Field {
	return []*Field{
		{Name: "cpu_pct", Type: TypeFloat32, Transient: false},
		{Name: "mem_bytes", Type: TypeUint64, Transient: false},
		{Name: "disk_io_bps", Type: TypeFloat64, Transient: false},
		{Name: "geo_lat", Type: TypeFloat32, Transient: false},
		{Name: "geo_lon", Type: TypeFloat32, Transient: false},
	}
}

// ID is MD5(signature) where signature = name ∥ resource_type ∥
// interval ∥ ingester_type ∥ Σ MD5(field-signature) (spec.md §3,
// invariant 6, property P4).
func (i *Ingester) ID() string {
	h := md5.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", i.Name, i.ResourceType, i.Interval, i.IngesterType)
	for _, f := range i.Fields {
		sum := md5.Sum([]byte(f.Signature()))
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PersistedFields returns the non-transient, non-system fields in
// declaration order — the column set invariant 4 / property P3
// describe. System fields (ts, created_at, updated_at, uid) are excluded
// here and prepended separately by the storage adapter's create_table,
// since their SQL type mapping is fixed per resource type rather than
// per declared Field. Monitor telemetry fields are returned here like
// declared fields, so they get columns of their declared types.
func (i *Ingester) PersistedFields() []*Field {
	out := make([]*Field, 0, len(i.Fields))
	for _, f := range i.Fields {
		if f.Transient || isSystemFieldName(f.Name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isSystemFieldName(name string) bool {
	switch name {
	case "ts", "created_at", "updated_at", "uid":
		return true
	default:
		return false
	}
}

// FieldByName implements the Resource access contract from spec.md §9's
// re-architecture hints: no dynamic __getattr__/__setattr__ proxy, just
// an explicit lookup.
func (i *Ingester) FieldByName(name string) (*Field, bool) {
	for _, f := range i.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// SetFieldValue sets the named field's value, returning an error if no
// such field is declared.
func (i *Ingester) SetFieldValue(name string, value any) error {
	f, ok := i.FieldByName(name)
	if !ok {
		return fmt.Errorf("model: ingester %q has no field %q", i.Name, name)
	}
	f.Value = value
	return nil
}

// ClearEpoch nils every non-readonly field's value at the start of a new
// epoch (spec.md §3 Lifecycle).
func (i *Ingester) ClearEpoch() {
	for _, f := range i.Fields {
		if !f.Readonly {
			f.Value = nil
		}
	}
}

// ToDict renders a scope-filtered map, the serialization the cache
// record, pub/sub payload, and Query API views all derive from
// (spec.md §3 "Cache record", GLOSSARY "Scope").
func (i *Ingester) ToDict(scope Scope) map[string]any {
	out := make(map[string]any, len(i.Fields))
	for _, f := range i.Fields {
		if f.Protected && !scope.Has(ScopeProtected) {
			continue
		}
		if f.Transient && !scope.Has(ScopeTransient) {
			continue
		}
		out[f.Name] = f.Value
	}
	return out
}
