// Package versioncmp orders software version designations. It understands
// dotted versions ("2.4.0") and mainframe VnRnMn designations ("V5R6M0"),
// plus an optional PTF/service level used as a tiebreaker.
package versioncmp

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Designation is a version plus an optional PTF level. An empty Ptf means
// no PTF level.
type Designation struct {
	Version string `json:"version"`
	Ptf     string `json:"ptf_level,omitempty"`
}

// New builds a Designation from a version and a nullable PTF column.
func New(version string, ptf *string) Designation {
	d := Designation{Version: version}
	if ptf != nil {
		d.Ptf = *ptf
	}
	return d
}

func (d Designation) String() string {
	if d.Ptf == "" {
		return d.Version
	}
	return d.Version + " (" + d.Ptf + ")"
}

// PtfPtr returns the PTF level as a nullable column value.
func (d Designation) PtfPtr() *string {
	if d.Ptf == "" {
		return nil
	}
	p := d.Ptf
	return &p
}

// The parenthesised form yields the bare number ("12345"); PTF levels are
// compared by their digits, so it still orders with "PTF12345".
var designationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^([VRM0-9.]+)[-_]+(PTF[0-9]+)$`),   // V2R4M0-PTF12345
	regexp.MustCompile(`(?i)^([0-9.]+)\s*\(PTF\s*([0-9]+)\)$`), // 2.4.0 (PTF 12345)
	regexp.MustCompile(`(?i)^([VRM0-9.]+)\s+(PTF[0-9]+)$`),     // V2R4M0 PTF12345
	regexp.MustCompile(`(?i)^([0-9.]+)[-_]+(SP[0-9]+)$`),       // 2.4.0-SP1
}

// ParseDesignation splits a vendor designation into version and PTF level.
// Unrecognised input is returned whole as the version with no PTF.
func ParseDesignation(s string) Designation {
	s = strings.TrimSpace(s)
	for _, re := range designationPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return Designation{
				Version: strings.TrimSpace(m[1]),
				Ptf:     strings.TrimSpace(m[2]),
			}
		}
	}
	return Designation{Version: s}
}

// CompareVersions returns -1, 0 or 1. Versions are split on V, R, M and '.',
// each fragment contributes its leading integer (0 when it has none, clamped
// to the int64 range when it overflows) and the sequences are compared with
// missing trailing tokens treated as 0.
func CompareVersions(a, b string) int {
	pa, pb := tokens(a), tokens(b)
	n := max(len(pa), len(pb))
	for i := 0; i < n; i++ {
		var x, y int64
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func tokens(v string) []int64 {
	parts := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case '.', 'V', 'v', 'R', 'r', 'M', 'm':
			return true
		}
		return false
	})
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		out = append(out, leadingInt(p))
	}
	return out
}

func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	// ParseInt returns the clamped value alongside ErrRange.
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return n
}

// ComparePtfLevels orders PTF levels by their embedded digits. An absent
// level sorts before any present one; levels without digits compare equal.
func ComparePtfLevels(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	da, db := digits(a), digits(b)
	if da == "" || db == "" {
		return 0
	}
	if len(da) != len(db) {
		if len(da) < len(db) {
			return -1
		}
		return 1
	}
	return strings.Compare(da, db)
}

// digits keeps only ASCII digits and drops leading zeros.
func digits(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			sb.WriteByte(s[i])
		}
	}
	d := sb.String()
	if d == "" {
		return ""
	}
	if t := strings.TrimLeft(d, "0"); t != "" {
		return t
	}
	return "0"
}

// Compare orders two designations by version, then PTF level.
func Compare(a, b Designation) int {
	if c := CompareVersions(a.Version, b.Version); c != 0 {
		return c
	}
	return ComparePtfLevels(a.Ptf, b.Ptf)
}

// IsVersionCompatible reports installed >= required, or exact equality in
// strict mode.
func IsVersionCompatible(installed, required Designation, strict bool) bool {
	c := Compare(installed, required)
	if strict {
		return c == 0
	}
	return c >= 0
}
