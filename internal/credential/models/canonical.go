package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalValue reduces v to the shape it has after a JSON round trip:
// structs become maps and numbers become json.Number. Signing and
// commitments hash this form so a decoded credential hashes identically.
func CanonicalValue(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeCanonical(encoded)
}

// CanonicalClaims applies CanonicalValue to every claim.
func CanonicalClaims(c Claims) (Claims, error) {
	if c == nil {
		return nil, nil
	}
	out := make(Claims, len(c))
	for name, value := range c {
		canon, err := CanonicalValue(value)
		if err != nil {
			return nil, fmt.Errorf("encode claim %q: %w", name, err)
		}
		out[name] = canon
	}
	return out, nil
}

func decodeCanonical(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
