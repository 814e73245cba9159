package requirements

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nameRE      = regexp.MustCompile(`^[A-Za-z0-9][-A-Za-z0-9._]*`)
	validNameRE = regexp.MustCompile(`(?i)^([a-z0-9]|[a-z0-9][a-z0-9._-]*[a-z0-9])$`)
	separatorRE = regexp.MustCompile(`[-_.]+`)

	// Public version identifiers plus the lenient spellings pip accepts.
	versionRE = regexp.MustCompile(`(?i)^v?` +
		`(?:[0-9]+!)?` + // epoch
		`[0-9]+(?:\.[0-9]+)*` + // release
		`(?:[-_.]?(?:a|b|c|rc|alpha|beta|pre|preview)[-_.]?[0-9]*)?` + // pre
		`(?:-[0-9]+|[-_.]?(?:post|rev|r)[-_.]?[0-9]*)?` + // post
		`(?:[-_.]?dev[-_.]?[0-9]*)?` + // dev
		`(?:\+[a-z0-9]+(?:[-_.][a-z0-9]+)*)?$`) // local
)

// NormalizeName returns the canonical form of a package name: lowercase
// with every run of "-", "_" and "." collapsed to a single "-".
func NormalizeName(name string) string {
	return separatorRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// ValidName reports whether name is a syntactically valid package name.
func ValidName(name string) bool {
	return validNameRE.MatchString(name)
}

// ValidVersion reports whether v is a valid version identifier such as
// "1.46.1", "2025.7.14", "2.0rc1" or "1!2.0.post1".
func ValidVersion(v string) bool {
	return versionRE.MatchString(v)
}

// ValidSpecifierVersion is ValidVersion with the trailing ".*" wildcard
// allowed for the "==" and "!=" operators.
func ValidSpecifierVersion(op, v string) bool {
	if (op == "==" || op == "!=") && strings.HasSuffix(v, ".*") {
		return ValidVersion(strings.TrimSuffix(v, ".*"))
	}
	if op == "===" {
		return v != ""
	}
	return ValidVersion(v)
}

// CanonicalVersion rewrites v so that versions pip considers equal are equal
// strings: "1.26", "1.26.0" and "V1.026" all become "1.26", "1.0RC1" becomes
// "1rc1". Only the release segments are normalized; the suffix is just
// lowercased.
func CanonicalVersion(v string) string {
	v = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "v")

	epoch := ""
	if i := strings.IndexByte(v, '!'); i >= 0 {
		epoch, v = v[:i], v[i+1:]
		if n, err := strconv.Atoi(epoch); err == nil && n == 0 {
			epoch = ""
		}
	}

	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	release := strings.TrimRight(v[:end], ".")
	rest := v[len(release):]

	segments := strings.Split(release, ".")
	for i, seg := range segments {
		if n, err := strconv.Atoi(seg); err == nil {
			segments[i] = strconv.Itoa(n)
		}
	}
	for len(segments) > 1 && segments[len(segments)-1] == "0" {
		segments = segments[:len(segments)-1]
	}

	out := strings.Join(segments, ".") + rest
	if epoch != "" {
		out = epoch + "!" + out
	}
	return out
}
