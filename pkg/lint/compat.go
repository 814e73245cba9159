package lint

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/simonkienzler/reqsniffer/pkg/requirements"
)

// bound is one end of a version range.
type bound struct {
	v         *semver.Version
	exclusive bool
}

// interval is the set of versions allowed by a list of specifiers.
type interval struct {
	lower, upper *bound
	excluded     []*semver.Version
}

// compatible reports whether at least one version satisfies the specifiers
// of every entry. Versions that do not fit a numeric scheme are compared
// textually, so only two different pins are treated as a conflict there.
func compatible(entries ...*requirements.Requirement) bool {
	var iv interval
	for _, r := range entries {
		for _, s := range r.Specifiers {
			if !iv.add(s) {
				return textuallyCompatible(entries)
			}
		}
	}
	return !iv.empty()
}

func textuallyCompatible(entries []*requirements.Requirement) bool {
	pin := ""
	for _, r := range entries {
		if !r.Pinned() {
			continue
		}
		v := requirements.CanonicalVersion(r.Specifiers[0].Version)
		if pin != "" && v != pin {
			return false
		}
		pin = v
	}
	return true
}

// add narrows the interval by s. It returns false when s cannot be
// expressed numerically.
func (iv *interval) add(s requirements.Specifier) bool {
	version := s.Version

	if strings.HasSuffix(version, ".*") {
		if s.Op != "==" {
			// "!=1.2.*" only removes a slice of versions; it never makes the
			// range empty on its own.
			return s.Op == "!="
		}
		lo, hi, ok := prefixRange(strings.TrimSuffix(version, ".*"))
		if !ok {
			return false
		}
		iv.raise(&bound{v: lo})
		iv.lowerTo(&bound{v: hi, exclusive: true})
		return true
	}

	parts, ok := releaseParts(strings.TrimPrefix(strings.ToLower(version), "v"))
	if !ok {
		return false
	}
	v := toVersion(parts)

	switch s.Op {
	case "==", "===":
		iv.raise(&bound{v: v})
		iv.lowerTo(&bound{v: v})
	case ">=":
		iv.raise(&bound{v: v})
	case ">":
		iv.raise(&bound{v: v, exclusive: true})
	case "<=":
		iv.lowerTo(&bound{v: v})
	case "<":
		iv.lowerTo(&bound{v: v, exclusive: true})
	case "!=":
		iv.excluded = append(iv.excluded, v)
	case "~=":
		_, hi, ok := compatibleRange(version)
		if !ok {
			return false
		}
		iv.raise(&bound{v: v})
		iv.lowerTo(&bound{v: hi, exclusive: true})
	default:
		return false
	}
	return true
}

func (iv *interval) raise(b *bound) {
	if iv.lower == nil {
		iv.lower = b
		return
	}
	switch c := b.v.Compare(iv.lower.v); {
	case c > 0:
		iv.lower = b
	case c == 0 && b.exclusive:
		iv.lower = b
	}
}

func (iv *interval) lowerTo(b *bound) {
	if iv.upper == nil {
		iv.upper = b
		return
	}
	switch c := b.v.Compare(iv.upper.v); {
	case c < 0:
		iv.upper = b
	case c == 0 && b.exclusive:
		iv.upper = b
	}
}

func (iv *interval) empty() bool {
	if iv.lower == nil || iv.upper == nil {
		return false
	}

	switch c := iv.lower.v.Compare(iv.upper.v); {
	case c > 0:
		return true
	case c < 0:
		return false
	}

	// single point range
	if iv.lower.exclusive || iv.upper.exclusive {
		return true
	}
	for _, x := range iv.excluded {
		if x.Equal(iv.lower.v) {
			return true
		}
	}
	return false
}

// prefixRange returns [prefix, next prefix) for a wildcard such as "1.2".
func prefixRange(prefix string) (*semver.Version, *semver.Version, bool) {
	parts, ok := releaseParts(prefix)
	if !ok {
		return nil, nil, false
	}
	next := append([]int{}, parts...)
	next[len(next)-1]++
	return toVersion(parts), toVersion(next), true
}

// compatibleRange implements the "~=" upper bound: "~=1.4.2" allows
// versions below 1.5 and "~=2.2" allows versions below 3.
func compatibleRange(version string) (*semver.Version, *semver.Version, bool) {
	parts, ok := releaseParts(version)
	if !ok || len(parts) < 2 {
		return nil, nil, false
	}
	next := append([]int{}, parts[:len(parts)-1]...)
	next[len(next)-1]++
	return toVersion(parts), toVersion(next), true
}

// releaseParts splits a plain release such as "2025.07.14" into its numeric
// segments. Leading zeros are insignificant and missing segments count as
// zero, so "2024.1" and "2024.1.0" end up equal.
func releaseParts(version string) ([]int, bool) {
	fields := strings.Split(version, ".")
	if len(fields) > 3 {
		return nil, false
	}
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, false
		}
		parts[i] = n
	}
	return parts, true
}

func toVersion(parts []int) *semver.Version {
	var major, minor, patch uint64
	major = uint64(parts[0])
	if len(parts) > 1 {
		minor = uint64(parts[1])
	}
	if len(parts) > 2 {
		patch = uint64(parts[2])
	}
	return semver.New(major, minor, patch, "", "")
}
