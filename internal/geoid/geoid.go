// Package geoid normalizes census geographic identifiers so that tract codes
// from shapefiles, the ACS API, and hand-entered tables compare equal.
package geoid

import (
	"fmt"
	"strings"
)

// geoPrefix is the summary-level prefix on full GEO_ID values from the ACS API.
const geoPrefix = "1400000US"

// NormalizeState normalizes a state FIPS code to 2 digits with zero-padding.
func NormalizeState(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || !isDigits(code) || len(code) > 2 {
		return ""
	}
	return leftPad(code, 2)
}

// NormalizeCounty normalizes a county FIPS code to 3 digits with zero-padding.
func NormalizeCounty(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || !isDigits(code) || len(code) > 3 {
		return ""
	}
	return leftPad(code, 3)
}

// Build combines state, county and tract into an 11-digit tract GEOID.
// Returns "" if any part is invalid.
func Build(state, county, tract string) string {
	s := NormalizeState(state)
	c := NormalizeCounty(county)
	t := NormalizeTract(tract)
	if s == "" || c == "" || t == "" {
		return ""
	}
	return s + c + t
}

// NormalizeTract reduces any tract identifier to the 6-digit tract code
// (4-digit basic code + 2-digit suffix). It returns "" for values that are
// not tract identifiers.
//
// Accepted forms:
//
//	53033010100        11-digit GEOID (state+county+tract)
//	1400000US53033010100
//	033010100          county+tract
//	010100             tract code
//	10100              tract code that lost its leading zero
//	0101, 101          basic code, suffix 00
//	101.01             display form
//	033-0101           county-prefixed local code
func NormalizeTract(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, geoPrefix)
	if i := strings.LastIndex(id, "-"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		return ""
	}

	if basic, suffix, ok := strings.Cut(id, "."); ok {
		if !isDigits(basic) || !isDigits(suffix) || len(basic) > 4 || len(suffix) > 2 {
			return ""
		}
		return leftPad(basic, 4) + rightPad(suffix, 2)
	}

	if !isDigits(id) {
		return ""
	}

	switch n := len(id); {
	case n == 11 || n == 9:
		return id[n-6:]
	case n == 6:
		return id
	case n == 5:
		return leftPad(id, 6)
	case n <= 4:
		return leftPad(id, 4) + "00"
	default:
		return ""
	}
}

// SameTract reports whether two identifiers denote the same tract code.
func SameTract(a, b string) bool {
	na := NormalizeTract(a)
	return na != "" && na == NormalizeTract(b)
}

// FormatTract renders a normalized tract code in display form, e.g. "101.01"
// or "101".
func FormatTract(tract string) string {
	t := NormalizeTract(tract)
	if t == "" {
		return ""
	}
	basic := strings.TrimLeft(t[:4], "0")
	if basic == "" {
		basic = "0"
	}
	if t[4:] == "00" {
		return basic
	}
	return fmt.Sprintf("%s.%s", basic, t[4:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

func rightPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat("0", n-len(s))
}
