// Package metadata encodes upload metadata into the transport-safe
// Upload-Metadata header representation and back.
//
// The wire format is a comma-separated list of pairs, each pair being the key,
// a single space, and the standard-base64-encoded value. A pair may consist of
// the key alone, which stands for an empty value.
package metadata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidKey is returned by Encode when a metadata key is empty or contains
// characters that would collide with the pair or key-value delimiters.
var ErrInvalidKey = errors.New("metadata key must be non-empty and must not contain spaces or commas")

// ErrMalformed is returned by Decode when the input is not a valid encoded
// metadata list.
var ErrMalformed = errors.New("malformed metadata")

// Encode converts a metadata mapping into its header representation.
// Pairs are emitted in sorted key order so the output is stable.
func Encode(meta map[string]string) (string, error) {
	keys := make([]string, 0, len(meta))
	for key := range meta {
		if key == "" || strings.ContainsAny(key, " ,") {
			return "", fmt.Errorf("key %q: %w", key, ErrInvalidKey)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		value := meta[key]
		if value == "" {
			pairs = append(pairs, key)
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s %s", key, base64.StdEncoding.EncodeToString([]byte(value))))
	}

	return strings.Join(pairs, ","), nil
}

// Decode is the exact inverse of Encode. Unknown or duplicate keys are kept
// as-is (last one wins); undecodable values fail instead of being dropped.
func Decode(encoded string) (map[string]string, error) {
	meta := map[string]string{}
	if encoded == "" {
		return meta, nil
	}

	for _, pair := range strings.Split(encoded, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), " ", 2)
		key := parts[0]
		if key == "" {
			return nil, fmt.Errorf("empty key in %q: %w", pair, ErrMalformed)
		}
		if len(parts) == 1 {
			meta[key] = ""
			continue
		}
		value, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("value of key %q: %w", key, ErrMalformed)
		}
		meta[key] = string(value)
	}

	return meta, nil
}
