package cachebus

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Encoding policy (spec.md §4.1): primitive values are stored as their
// UTF-8 textual form; complex values (maps, slices, structs) are
// binary-serialized with a single canonical format shared by every
// worker and API reader. chomp picks MessagePack (Open Question #2 in
// SPEC_FULL.md), via the msgpack codec already pulled in transitively
// by the teacher's raft dependency (hashicorp/go-msgpack).

var mh = &codec.MsgpackHandle{}

// encodeValue renders v per the encoding policy above, returning the
// bytes to store under a cache key or publish on a channel.
func encodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(t), nil
	case bool:
		return []byte(strconv.FormatBool(t)), nil
	case int:
		return []byte(strconv.Itoa(t)), nil
	case int64:
		return []byte(strconv.FormatInt(t, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(t, 'g', -1, 64)), nil
	default:
		var buf []byte
		enc := codec.NewEncoderBytes(&buf, mh)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("cachebus: encode: %w", err)
		}
		return buf, nil
	}
}

// decodeValue reverses encodeValue for the complex-value path. Callers
// that know they stored a primitive should parse the bytes directly;
// decodeValue is used for cache records and pub/sub payloads, which are
// always maps.
func decodeValue(data []byte, out any) error {
	dec := codec.NewDecoderBytes(data, mh)
	return dec.Decode(out)
}

// EncodeRecord serializes a field dict (an Ingester.ToDict result) for
// a cache:<name> key or a pub/sub publish, per spec.md §4.1/§6.
func EncodeRecord(record map[string]any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, mh)
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("cachebus: encode record: %w", err)
	}
	return buf, nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(data) == 0 {
		return out, nil
	}
	if err := decodeValue(data, &out); err != nil {
		return nil, fmt.Errorf("cachebus: decode record: %w", err)
	}
	return out, nil
}
