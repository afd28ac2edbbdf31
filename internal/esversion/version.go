// Package esversion parses and orders dotted Elasticsearch version strings.
//
// Versions are strict major.minor.patch triples. Shorter or longer forms and
// non-numeric components are rejected at parse time, so every comparison
// operates on fully-qualified triples.
package esversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed major.minor.patch triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseError reports an invalid version string.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// Parse parses a dotted version string into a Version.
// The string must consist of exactly three non-negative numeric components.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, &ParseError{Input: s, Reason: "empty string"}
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, &ParseError{
			Input:  s,
			Reason: fmt.Sprintf("expected 3 components, got %d", len(parts)),
		}
	}

	var nums [3]int
	for i, part := range parts {
		if !isDigits(part) {
			return Version{}, &ParseError{
				Input:  s,
				Reason: fmt.Sprintf("component %q is not a non-negative integer", part),
			}
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, &ParseError{
				Input:  s,
				Reason: fmt.Sprintf("component %q is not a non-negative integer", part),
			}
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse parses s and panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the dotted form of the version.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1 if v is lower than other, 0 if equal, +1 if higher.
// Components are compared in order: major, then minor, then patch.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	return compareInt(v.Patch, other.Patch)
}

// Less reports whether v is lower than other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// IsZero reports whether v is the zero version 0.0.0.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
