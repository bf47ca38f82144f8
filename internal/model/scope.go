package model

// Scope is a bit-set passed to Ingester.ToDict (spec.md GLOSSARY
// "Scope"). ToDict honours only ScopeTransient and ScopeProtected, which
// admit transient and protected fields; the other bits do not change its
// output, which maps each field name to its value.
type Scope uint16

const (
	ScopeTransient Scope = 1 << iota
	ScopeTarget
	ScopeSelector
	ScopeMethod
	ScopeTransformers
	ScopePreTransformer
	ScopeParams
	ScopeProtected
)

const (
	// ScopeDefault is used for the cache record and pub/sub payload: it
	// carries the values of non-transient, non-protected fields.
	ScopeDefault = Scope(0)

	// ScopeDetailed sets the target, selector, params and method bits.
	ScopeDetailed = ScopeTarget | ScopeSelector | ScopeParams | ScopeMethod

	// ScopeAll exposes everything, including transient and protected
	// fields; never used on a public-scope API response (invariant 3).
	ScopeAll = ScopeTransient | ScopeTarget | ScopeSelector | ScopeMethod |
		ScopeTransformers | ScopePreTransformer | ScopeParams | ScopeProtected
)

// Has reports whether every bit in want is set in s.
func (s Scope) Has(want Scope) bool { return s&want == want }

// PublicScope is ScopeDetailed minus ScopeProtected and ScopeTransient:
// ToDict with it leaves out protected and transient fields (invariant 3).
func PublicScope() Scope { return ScopeDetailed &^ ScopeProtected &^ ScopeTransient }
