package config

import (
	"fmt"
	"strings"

	"github.com/btr-supply/chomp/internal/model"
)

// ResolveProcessorDependencies applies spec.md §4.5.4's processor
// dependency-inheritance pass: for every processor ingester field whose
// Selector is "<dep-name>.<field-name>", missing attributes (type,
// tags, handler, ...) are filled in from the referenced field on the
// named dependency ingester via Field.MergeEmpty (merge-replace-empty:
// present attributes on the processor field are never overwritten).
// Called once after every ingester in a config document has been
// built, so dependency ingesters declared later in the file still
// resolve.
func ResolveProcessorDependencies(ings []*model.Ingester) error {
	byName := make(map[string]*model.Ingester, len(ings))
	for _, ing := range ings {
		byName[ing.Name] = ing
	}

	for _, ing := range ings {
		if ing.IngesterType != model.TypeProcessor {
			continue
		}
		for _, field := range ing.Fields {
			depName, depField, ok := splitDepSelector(field.Selector)
			if !ok {
				continue
			}
			dep, ok := byName[depName]
			if !ok {
				return fmt.Errorf("config: processor %q field %q references unknown dependency ingester %q", ing.Name, field.Name, depName)
			}
			src := findField(dep, depField)
			if src == nil {
				return fmt.Errorf("config: processor %q field %q references unknown field %q on dependency %q", ing.Name, field.Name, depField, depName)
			}
			field.MergeEmpty(src)
		}
	}
	return nil
}

// splitDepSelector parses a "<dep-name>.<field-name>" selector. A
// selector with no dot, or an empty selector, is not a dependency
// reference.
func splitDepSelector(selector string) (dep, field string, ok bool) {
	i := strings.IndexByte(selector, '.')
	if i <= 0 || i == len(selector)-1 {
		return "", "", false
	}
	return selector[:i], selector[i+1:], true
}

func findField(ing *model.Ingester, name string) *model.Field {
	for _, f := range ing.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}
