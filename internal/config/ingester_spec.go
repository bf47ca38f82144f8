package config

import (
	"github.com/btr-supply/chomp/internal/model"
)

// FieldSpec is the YAML-decodable form of model.Field.
type FieldSpec struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Target       string   `yaml:"target"`
	Selector     string   `yaml:"selector"`
	Params       string   `yaml:"params"`
	Transformers []string `yaml:"transformers"`
	Tags         []string `yaml:"tags"`
	Transient    bool     `yaml:"transient"`
	Protected    bool     `yaml:"protected"`
	Handler      string   `yaml:"handler"`
	Reducer      string   `yaml:"reducer"`
}

func (s FieldSpec) toField() *model.Field {
	return &model.Field{
		Name:         s.Name,
		Type:         model.FieldType(s.Type),
		Target:       s.Target,
		Selector:     s.Selector,
		Params:       s.Params,
		Transformers: s.Transformers,
		Tags:         s.Tags,
		Transient:    s.Transient,
		Protected:    s.Protected,
		Handler:      s.Handler,
		Reducer:      s.Reducer,
	}
}

// IngesterSpec is the YAML-decodable form of model.Ingester declared in
// a config document's "ingesters:" list.
type IngesterSpec struct {
	Name         string      `yaml:"name"`
	Type         string      `yaml:"type"`
	ResourceType string      `yaml:"resource_type"`
	Interval     string      `yaml:"interval"`
	Probability  float64     `yaml:"probability"`
	PreTransform string      `yaml:"pre_transformer"`
	Monitored    bool        `yaml:"monitored"`
	Fields       []FieldSpec `yaml:"fields"`

	// RPCEndpoints is the round-robin endpoint list an evm_caller/
	// svm_caller/sui_caller ingester's rpcpool.Pool is built from
	// (spec.md §5 "Chain RPC endpoints: one endpoint list per chain").
	RPCEndpoints []string `yaml:"rpc_endpoints"`
}

// ToIngester builds a model.Ingester with system fields applied.
func (s IngesterSpec) ToIngester() *model.Ingester {
	fields := make([]*model.Field, 0, len(s.Fields))
	for _, fs := range s.Fields {
		fields = append(fields, fs.toField())
	}
	return model.NewIngester(model.Ingester{
		Name:         s.Name,
		IngesterType: model.IngesterType(s.Type),
		ResourceType: model.ResourceType(s.ResourceType),
		Interval:     model.Interval(s.Interval),
		Fields:       fields,
		Probability:  s.Probability,
		PreTransform: s.PreTransform,
		Monitored:    s.Monitored,
	})
}
