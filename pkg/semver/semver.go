// Package semver computes and compares major.minor.patch version numbers
// for prompt snapshots. Every function is total: malformed input degrades to
// a fixed fallback instead of returning an error.
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Change classes accepted by Next.
const (
	Major = "major"
	Minor = "minor"
	Patch = "patch"
)

// Initial is the number assigned to the first snapshot of every prompt.
const Initial = "1.0.0"

// fallback is returned by Next when the current version cannot be parsed.
const fallback = "1.0.1"

// Parse splits "X.Y.Z" into its numeric components.
func Parse(v string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("malformed version %q", v)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, fmt.Errorf("malformed version %q", v)
		}
		out[i] = n
	}
	return out, nil
}

// Next bumps current according to changeType. Anything other than major or
// minor is treated as a patch.
func Next(current, changeType string) string {
	p, err := Parse(current)
	if err != nil {
		return fallback
	}
	switch changeType {
	case Major:
		return fmt.Sprintf("%d.0.0", p[0]+1)
	case Minor:
		return fmt.Sprintf("%d.%d.0", p[0], p[1]+1)
	default:
		return fmt.Sprintf("%d.%d.%d", p[0], p[1], p[2]+1)
	}
}

// Compare returns 1 if v1 > v2, -1 if v1 < v2 and 0 if they are equal or
// either side fails to parse.
func Compare(v1, v2 string) int {
	a, err := Parse(v1)
	if err != nil {
		return 0
	}
	b, err := Parse(v2)
	if err != nil {
		return 0
	}
	for i := range a {
		switch {
		case a[i] > b[i]:
			return 1
		case a[i] < b[i]:
			return -1
		}
	}
	return 0
}

// ValidChangeType reports whether t is an accepted change class. The empty
// string is accepted and means patch.
func ValidChangeType(t string) bool {
	switch t {
	case "", Major, Minor, Patch:
		return true
	}
	return false
}
