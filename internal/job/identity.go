package job

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Identity computes the deduplication fingerprint for an invocation: the hex
// sha1 of the canonical rendering "name(arg0, arg1, k0=v0, k1=v1)". Values are
// JSON-encoded and kwargs keys are sorted lexicographically so the fingerprint
// is reproducible across processes. Equal (name, args, kwargs) always yield an
// equal identity; deschedule relies on recomputing the same fingerprint.
func Identity(name string, args []any, kwargs map[string]any) (string, error) {
	canonical, err := canonicalCall(name, args, kwargs)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalCall renders the invocation as a deterministic string.
func canonicalCall(name string, args []any, kwargs map[string]any) (string, error) {
	parts := make([]string, 0, len(args)+len(kwargs))

	for i, arg := range args {
		encoded, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode arg %d: %w", i, err)
		}
		parts = append(parts, string(encoded))
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		encoded, err := json.Marshal(kwargs[k])
		if err != nil {
			return "", fmt.Errorf("failed to encode kwarg %q: %w", k, err)
		}
		parts = append(parts, k+"="+string(encoded))
	}

	return name + "(" + strings.Join(parts, ", ") + ")", nil
}
