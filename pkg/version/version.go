// Package version parses and compares i3X API versions as announced in
// discovery records.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the API version implemented by this library.
const Current = "1.0"

// APIVersion is a parsed "major.minor" API version.
type APIVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string. A leading "v" is accepted.
func Parse(s string) (APIVersion, error) {
	parts := strings.Split(strings.TrimPrefix(s, "v"), ".")
	if len(parts) != 2 {
		return APIVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return APIVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return APIVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return APIVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v APIVersion) Compatible(other APIVersion) bool {
	return v.Major == other.Major
}

// Supports reports whether a server announcing version announced can be
// used by this library. Servers that announce no version are assumed
// compatible; malformed versions are not.
func Supports(announced string) bool {
	if announced == "" {
		return true
	}
	v, err := Parse(announced)
	if err != nil {
		return false
	}
	current, _ := Parse(Current)
	return current.Compatible(v)
}
