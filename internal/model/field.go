package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// FieldType is the declared wire/storage type of a Field's value.
type FieldType string

const (
	TypeInt8      FieldType = "int8"
	TypeInt16     FieldType = "int16"
	TypeInt32     FieldType = "int32"
	TypeInt64     FieldType = "int64"
	TypeUint8     FieldType = "uint8"
	TypeUint16    FieldType = "uint16"
	TypeUint32    FieldType = "uint32"
	TypeUint64    FieldType = "uint64"
	TypeFloat32   FieldType = "float32"
	TypeFloat64   FieldType = "float64"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
	TypeString    FieldType = "string"
	TypeBinary    FieldType = "binary"
	TypeVarBinary FieldType = "varbinary"
)

// Field is the atomic ingestion unit (spec.md §3 "Field").
type Field struct {
	Name         string    `yaml:"name" json:"name"`
	Type         FieldType `yaml:"type" json:"type"`
	Target       string    `yaml:"target" json:"target,omitempty"`
	Selector     string    `yaml:"selector" json:"selector,omitempty"`
	Params       string    `yaml:"params" json:"params,omitempty"`
	Transformers []string  `yaml:"transformers" json:"transformers,omitempty"`
	Tags         []string  `yaml:"tags" json:"tags,omitempty"`
	Transient    bool      `yaml:"transient" json:"transient,omitempty"`
	Protected    bool      `yaml:"protected" json:"protected,omitempty"`

	// Handler and Reducer are expressions carried with the declaration.
	// Handler is part of TargetID and is inherited by processor fields;
	// the ws_api and resp3_subscriber fetchers evaluate neither.
	Handler string `yaml:"handler" json:"handler,omitempty"`
	Reducer string `yaml:"reducer" json:"reducer,omitempty"`

	// Value is mutable, cleared at the start of each epoch except for
	// readonly system fields (uid, created_at, ...).
	Value any `yaml:"-" json:"value"`

	// Readonly marks a system field whose value survives across epochs
	// (uid, created_at) rather than being cleared (spec.md §3 Lifecycle).
	Readonly bool `yaml:"-" json:"-"`
}

// IsMissing reports whether the field's value is still nil after the
// fetch+transform pipeline ran (spec.md §4.6 "reported as missing").
func (f *Field) IsMissing() bool { return f.Value == nil }

// TargetID is MD5(target ∥ selector ∥ params ∥ transformers-joined ∥
// handler) per spec.md §3 "stable target_id".
func (f *Field) TargetID() string {
	h := md5.New()
	h.Write([]byte(f.Target))
	h.Write([]byte(f.Selector))
	h.Write([]byte(f.Params))
	h.Write([]byte(strings.Join(f.Transformers, "\x1f")))
	h.Write([]byte(f.Handler))
	return hex.EncodeToString(h.Sum(nil))
}

// Signature is the byte sequence folded into an Ingester's stable id
// (spec.md §3 "Ingester.id").
func (f *Field) Signature() string {
	return fmt.Sprintf("%s|%s|%s", f.Name, f.Type, f.TargetID())
}

// Clone returns a deep-enough copy for per-epoch field tables: slices
// are copied so that mutating Transformers/Tags on the clone never
// aliases the declared, immutable Field.
func (f *Field) Clone() *Field {
	c := *f
	c.Transformers = append([]string(nil), f.Transformers...)
	c.Tags = append([]string(nil), f.Tags...)
	return &c
}

// MergeEmpty fills c's empty attributes from src, leaving any attribute
// already set on c untouched. This implements the processor-ingester
// dependency-inheritance merge-replace-empty semantics of spec.md
// §4.5.4.
func (c *Field) MergeEmpty(src *Field) {
	if c.Type == "" {
		c.Type = src.Type
	}
	if c.Target == "" {
		c.Target = src.Target
	}
	if c.Selector == "" {
		c.Selector = src.Selector
	}
	if c.Params == "" {
		c.Params = src.Params
	}
	if c.Handler == "" {
		c.Handler = src.Handler
	}
	if len(c.Tags) == 0 {
		c.Tags = append([]string(nil), src.Tags...)
	}
}
