package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONSelectResolvesPath(t *testing.T) {
	require.Equal(t, "bar", jsonSelect(`{"foo":{"bar":"bar"}}`, "foo.bar"))
}

func TestJSONSelectMissingPathReturnsNil(t *testing.T) {
	require.Nil(t, jsonSelect(`{"foo":1}`, "missing"))
}
