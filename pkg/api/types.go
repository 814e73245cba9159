package api

import (
	semver "github.com/Masterminds/semver/v3"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Diagnostic struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
	Package  string   `json:"package,omitempty"`
	Message  string   `json:"message"`
}

// Package is a manifest entry measured against a reference version, either
// a configured preferred version or the latest release on the registry.
type Package struct {
	Name             string          `json:"name"`
	Section          string          `json:"section,omitempty"`
	Constraint       string          `json:"constraint,omitempty"`
	Version          *semver.Version `json:"version,omitempty"`
	PreferredVersion *semver.Version `json:"preferredVersion,omitempty"`
	Latest           *string         `json:"latest,omitempty"`
	Pinned           bool            `json:"pinned"`
	Score            uint64          `json:"score"`
}

type Report struct {
	Path        string       `json:"path"`
	Sections    []string     `json:"sections,omitempty"`
	Packages    []*Package   `json:"packages"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Score       uint64       `json:"score"`
}

// Count returns the number of diagnostics with the given severity.
func (r *Report) Count(sev Severity) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			n++
		}
	}
	return n
}
