package cache

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/tiercache/store"
)

// encodeValue maps a payload onto the closed set of stored shapes: text,
// binary, or structured (JSON).
func encodeValue(value any) (store.ValueKind, []byte, error) {
	switch v := value.(type) {
	case string:
		return store.ValueKindText, []byte(v), nil
	case []byte:
		return store.ValueKindBinary, v, nil
	case json.RawMessage:
		return store.ValueKindStructured, v, nil
	default:
		blob, err := json.Marshal(value)
		if err != nil {
			return "", nil, errors.Wrap(err, "failed to serialize cache value")
		}
		return store.ValueKindStructured, blob, nil
	}
}

// decodeValue reverses encodeValue. Structured payloads come back as
// json.RawMessage; use GetAs to decode them into a concrete type.
func decodeValue(kind store.ValueKind, blob []byte) (any, error) {
	switch kind {
	case store.ValueKindText:
		return string(blob), nil
	case store.ValueKindBinary:
		return blob, nil
	case store.ValueKindStructured:
		return json.RawMessage(blob), nil
	default:
		return nil, errors.Errorf("unknown value kind %q", kind)
	}
}

// GetAs retrieves a cached value and decodes it into T. Structured payloads
// are unmarshaled from JSON; text and binary payloads must match T directly.
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	value, ok := c.Get(ctx, key)
	if !ok {
		return zero, false, nil
	}
	if raw, isRaw := value.(json.RawMessage); isRaw {
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, false, errors.Wrapf(err, "failed to decode cached value for key %q", key)
		}
		return out, true, nil
	}
	out, matches := value.(T)
	if !matches {
		return zero, false, errors.Errorf("cached value for key %q is %T, not the requested type", key, value)
	}
	return out, true, nil
}
