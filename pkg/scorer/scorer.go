package scorer

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"k8s.io/utils/pointer"

	"github.com/simonkienzler/reqsniffer/pkg/api"
	"github.com/simonkienzler/reqsniffer/pkg/config"
	"github.com/simonkienzler/reqsniffer/pkg/lint"
	"github.com/simonkienzler/reqsniffer/pkg/pypi"
	"github.com/simonkienzler/reqsniffer/pkg/requirements"
)

// Rules added on top of the lint rules when a registry is available.
const (
	RuleUnknownPackage = "unknown-package"
	RuleUnknownVersion = "unknown-version"
	RuleYanked         = "yanked"
	RuleOutdated       = "outdated"
)

// Registry looks up package metadata. *pypi.Client implements it.
type Registry interface {
	FetchAll(ctx context.Context, names []string, refresh bool) (map[string]*pypi.PackageInfo, []string, error)
}

type Service struct {
	Logger               *zap.Logger
	RequirementsFileList []string
	PreferredVersions    config.PreferredVersions
	LintOptions          lint.Options

	// Registry is optional; without it no online checks run.
	Registry Registry
	Refresh  bool

	// Strict makes warnings fail the run.
	Strict bool
}

// PerformAnalysis analyses every manifest and writes the result to w. failed
// is set when a manifest has error diagnostics, or warnings in strict mode.
func (s *Service) PerformAnalysis(ctx context.Context, w io.Writer, format Format, verbose bool) (failed bool, err error) {
	reports, err := s.Analyse(ctx)
	if err != nil {
		return false, err
	}

	if err := Render(w, format, reports, verbose); err != nil {
		return false, zerr.Wrap(err, "rendering report failed")
	}

	for _, r := range reports {
		if r.Count(api.SeverityError) > 0 || (s.Strict && r.Count(api.SeverityWarning) > 0) {
			failed = true
		}
	}
	return failed, nil
}

// Analyse parses, lints and scores every manifest in RequirementsFileList.
// Malformed manifests produce diagnostics; only I/O and registry failures
// are returned as errors.
func (s *Service) Analyse(ctx context.Context) ([]*api.Report, error) {
	reports := make([]*api.Report, 0, len(s.RequirementsFileList))

	for _, path := range s.RequirementsFileList {
		report, err := s.analyseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func (s *Service) analyseFile(ctx context.Context, path string) (*api.Report, error) {
	logger := s.logger().With(zap.String("path", path))

	f, parseErr := requirements.ParseFile(path)
	if f == nil {
		return nil, zerr.With(zerr.Wrap(parseErr, "reading manifest failed"), "path", path)
	}
	logger.Debug("Parsed manifest",
		zap.Int("entries", len(f.Requirements)),
		zap.Int("sections", len(f.Sections)),
		zap.Bool("syntaxErrors", parseErr != nil))

	report := &api.Report{Path: path}
	for _, sec := range f.Sections {
		report.Sections = append(report.Sections, sec.Title)
	}

	report.Diagnostics = append(report.Diagnostics, lint.ParseDiagnostics(parseErr)...)
	report.Diagnostics = append(report.Diagnostics, lint.Lint(f, s.LintOptions)...)

	for _, name := range f.Names() {
		pkg, err := GetPackage(f.Lookup(name)[0], s.PreferredVersions)
		if err != nil {
			logger.Debug("Skipping version comparison", zap.String("package", name), zap.Error(err))
		}
		report.Packages = append(report.Packages, pkg)
	}

	if s.Registry != nil {
		diags, err := s.checkRegistry(ctx, f, report.Packages)
		if err != nil {
			return nil, zerr.With(err, "path", path)
		}
		report.Diagnostics = append(report.Diagnostics, diags...)
	}

	for _, pkg := range report.Packages {
		if pkg.Version != nil && pkg.PreferredVersion != nil {
			pkg.Score = scoreVersionDiff(*pkg.Version, *pkg.PreferredVersion)
		}
		report.Score += pkg.Score
	}

	sort.SliceStable(report.Diagnostics, func(i, j int) bool {
		return report.Diagnostics[i].Line < report.Diagnostics[j].Line
	})

	logger.Debug("Analysed manifest",
		zap.Uint64("score", report.Score),
		zap.Int("errors", report.Count(api.SeverityError)),
		zap.Int("warnings", report.Count(api.SeverityWarning)))

	return report, nil
}

// GetPackage builds the scored view of a manifest entry. The returned
// Package is never nil; the error explains why a version could not be
// taken into account.
func GetPackage(r *requirements.Requirement, preferred config.PreferredVersions) (*api.Package, error) {
	if r == nil {
		return nil, fmt.Errorf("no requirement provided")
	}

	pkg := &api.Package{
		Name:       r.Normalized,
		Section:    r.Section,
		Constraint: r.Constraint(),
		Pinned:     r.Pinned(),
	}

	var errs []error
	if v := referenceVersion(r); v != "" {
		version, err := semver.NewVersion(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("version %q: %w", v, err))
		} else {
			pkg.Version = version
		}
	}

	if p, ok := preferred.Lookup(r.Name); ok {
		prefVersion, err := semver.NewVersion(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("preferred version %q: %w", p, err))
		} else {
			pkg.PreferredVersion = prefVersion
		}
	}

	if len(errs) > 0 {
		return pkg, errs[0]
	}
	return pkg, nil
}

// referenceVersion is the version an entry is measured by: its pin or its
// lower bound.
func referenceVersion(r *requirements.Requirement) string {
	for _, s := range r.Specifiers {
		switch s.Op {
		case "==", "===", ">=", "~=":
			return s.Version
		}
	}
	return ""
}

func (s *Service) checkRegistry(ctx context.Context, f *requirements.File, pkgs []*api.Package) ([]api.Diagnostic, error) {
	found, missing, err := s.Registry.FetchAll(ctx, f.Names(), s.Refresh)
	if err != nil {
		return nil, err
	}

	var diags []api.Diagnostic
	for _, name := range missing {
		diags = append(diags, api.Diagnostic{
			Rule:     RuleUnknownPackage,
			Severity: api.SeverityError,
			Line:     f.Lookup(name)[0].Line,
			Package:  name,
			Message:  "package does not exist on the registry",
		})
	}

	for _, pkg := range pkgs {
		info, ok := found[pkg.Name]
		if !ok {
			continue
		}
		pkg.Latest = pointer.String(info.Version)

		if pkg.PreferredVersion == nil {
			if latest, err := semver.NewVersion(info.Version); err == nil {
				pkg.PreferredVersion = latest
			}
		}

		r := f.Lookup(pkg.Name)[0]
		if !r.Pinned() {
			continue
		}

		pinned := r.Specifiers[0].Version
		switch {
		case !info.HasRelease(pinned):
			diags = append(diags, api.Diagnostic{
				Rule:     RuleUnknownVersion,
				Severity: api.SeverityError,
				Line:     r.Line,
				Package:  pkg.Name,
				Message:  fmt.Sprintf("version %s was never released", pinned),
			})
		case info.IsYanked(pinned):
			diags = append(diags, api.Diagnostic{
				Rule:     RuleYanked,
				Severity: api.SeverityWarning,
				Line:     r.Line,
				Package:  pkg.Name,
				Message:  fmt.Sprintf("version %s was yanked", pinned),
			})
		case behind(pkg.Version, info.Version):
			diags = append(diags, api.Diagnostic{
				Rule:     RuleOutdated,
				Severity: api.SeverityWarning,
				Line:     r.Line,
				Package:  pkg.Name,
				Message:  fmt.Sprintf("pinned to %s, latest is %s", pinned, info.Version),
			})
		}
	}

	return diags, nil
}

// behind reports whether version is older than the latest release.
func behind(version *semver.Version, latest string) bool {
	if version == nil {
		return false
	}
	latestVersion, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}
	return scoreVersionDiff(*version, *latestVersion) > 0
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func scoreVersionDiff(actual, preferred semver.Version) uint64 {
	// the pkg in use is newer than the recommendation, great
	if actual.Major() > preferred.Major() {
		return 0
	}

	if actual.Major() < preferred.Major() {
		return (preferred.Major() - actual.Major()) * 100
	}

	// major version matches with the preferred one, check minor
	if actual.Minor() > preferred.Minor() {
		return 0
	}

	if actual.Minor() < preferred.Minor() {
		return (preferred.Minor() - actual.Minor()) * 10
	}

	// minor version matches with preferred, let's check patch if given
	if actual.Patch() < preferred.Patch() {
		return preferred.Patch() - actual.Patch()
	}

	return 0
}
