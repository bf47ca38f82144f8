package ingest

import "github.com/tidwall/gjson"

// jsonSelect applies a gjson path to a raw string payload, returning nil
// when the path doesn't resolve.
func jsonSelect(raw, selector string) any {
	result := gjson.Get(raw, selector)
	if !result.Exists() {
		return nil
	}
	return result.Value()
}
