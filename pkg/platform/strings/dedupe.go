// Package strings holds small slice helpers shared by the credential and
// privacy services.
package strings

import "strings"

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence. Credential types and claim names go through it before
// they are signed or stored, so the order callers gave is kept.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	out := values[:0:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Contains reports whether want is one of values, ignoring surrounding space.
func Contains(values []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, v := range values {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}
