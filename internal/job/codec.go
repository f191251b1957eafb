package job

import (
	"encoding/json"
	"fmt"
)

// Payload codec for args, kwargs, meta and results. The supported value
// domain is JSON: primitives, ordered sequences and string-keyed mappings,
// with decode(encode(x)) == x over that domain.

// EncodeValues encodes an ordered argument sequence. A nil slice encodes as
// the empty sequence "[]".
func EncodeValues(values []any) (string, error) {
	if values == nil {
		values = []any{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode values: %w", err)
	}
	return string(encoded), nil
}

// DecodeValues decodes an ordered argument sequence.
func DecodeValues(encoded string) ([]any, error) {
	var values []any
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil, fmt.Errorf("failed to decode values: %w", err)
	}
	return values, nil
}

// EncodeMapping encodes a string-keyed mapping. A nil map encodes as the
// empty mapping "{}".
func EncodeMapping(mapping map[string]any) (string, error) {
	if mapping == nil {
		mapping = map[string]any{}
	}
	encoded, err := json.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("failed to encode mapping: %w", err)
	}
	return string(encoded), nil
}

// DecodeMapping decodes a string-keyed mapping.
func DecodeMapping(encoded string) (map[string]any, error) {
	var mapping map[string]any
	if err := json.Unmarshal([]byte(encoded), &mapping); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	return mapping, nil
}

// EncodeResult encodes an operation's return value.
func EncodeResult(result any) (string, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(encoded), nil
}
