package lint

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonkienzler/reqsniffer/pkg/api"
	"github.com/simonkienzler/reqsniffer/pkg/requirements"
)

func parse(t *testing.T, content string) *requirements.File {
	t.Helper()
	f, err := requirements.Parse("requirements.txt", []byte(content))
	require.NoError(t, err)
	return f
}

func rules(diags []api.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Rule
	}
	return out
}

func TestLint_CleanManifest(t *testing.T) {
	f := parse(t, `# Core requirements
streamlit==1.46.1
numpy>=1.26.0
pandas

# Optional but recommended for stability
certifi==2025.7.14  # pinned for SSL
`)
	assert.Empty(t, Lint(f, Options{}))
}

func TestLint_EntryFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		opts    Options
		want    []string
	}{
		{
			name:    "disallowed operator",
			content: "numpy<=2.0\n",
			want:    []string{RuleEntryFormat},
		},
		{
			name:    "configured operator",
			content: "numpy~=1.26\n",
			opts:    Options{AllowedOperators: []string{"==", ">=", "~="}},
		},
		{
			name:    "multiple specifiers",
			content: "numpy>=1.26,>=1.20\n",
			want:    []string{RuleEntryFormat},
		},
		{
			name:    "extras and marker",
			content: "requests[socks]>=2.31; python_version>'3.8'\n",
			want:    []string{RuleEntryFormat, RuleEntryFormat},
		},
		{
			name:    "option line",
			content: "-r base.txt\nnumpy\n",
			want:    []string{RuleEntryFormat},
		},
		{
			name:    "option line allowed",
			content: "-r base.txt\ngit+https://github.com/user/repo.git\n",
			opts:    Options{AllowOptions: true},
		},
		{
			name:    "direct reference line",
			content: "git+https://github.com/user/repo.git\n",
			want:    []string{RuleEntryFormat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Lint(parse(t, tt.content), tt.opts)
			if len(tt.want) == 0 {
				assert.Empty(t, diags)
				return
			}
			assert.Equal(t, tt.want, rules(diags))
			for _, d := range diags {
				assert.Equal(t, api.SeverityError, d.Severity)
			}
		})
	}
}

func TestLint_VersionSyntax(t *testing.T) {
	diags := Lint(parse(t, "numpy==latest\nscipy>=1.13.0\npandas>=2..0\n"), Options{})

	require.Len(t, diags, 2)
	assert.Equal(t, RuleVersionSyntax, diags[0].Rule)
	assert.Equal(t, 1, diags[0].Line)
	assert.Equal(t, "numpy", diags[0].Package)
	assert.Equal(t, 3, diags[1].Line)
}

func TestLint_CommentFormat(t *testing.T) {
	diags := Lint(parse(t, "numpy>=1.26#core\nscipy>=1.13 # ok\n"), Options{})

	require.Len(t, diags, 1)
	assert.Equal(t, RuleCommentFormat, diags[0].Rule)
	assert.Equal(t, 1, diags[0].Line)
}

func TestLint_Unconstrained(t *testing.T) {
	f := parse(t, "numpy\nscipy>=1.13\n")

	assert.Empty(t, Lint(f, Options{}))

	diags := Lint(f, Options{RequireConstraints: true})
	require.Len(t, diags, 1)
	assert.Equal(t, RuleUnconstrained, diags[0].Rule)
	assert.Equal(t, api.SeverityWarning, diags[0].Severity)
}

func TestLint_Duplicates(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantRule string
		wantSev  api.Severity
	}{
		{"identical", "numpy>=1.26\nnumpy>=1.26\n", RuleDuplicate, api.SeverityWarning},
		{"normalized names", "python_dateutil==2.9.0\nPython-DateUtil==2.9.0\n", RuleDuplicate, api.SeverityWarning},
		{"two lower bounds", "numpy>=1.26\nnumpy>=1.20\n", RuleDuplicate, api.SeverityWarning},
		{"pin above bound", "numpy>=1.26\nnumpy==1.26.4\n", RuleDuplicate, api.SeverityWarning},
		{"unconstrained and pin", "numpy\nnumpy==1.26.4\n", RuleDuplicate, api.SeverityWarning},
		{"padded pins", "pytz==2024.1\npytz==2024.1.0\n", RuleDuplicate, api.SeverityWarning},
		{"leading zeros", "pytz==2025.07.14\npytz==2025.7.14\n", RuleDuplicate, api.SeverityWarning},
		{"leading zeros in bound", "pytz>=2025.07.01\npytz==2025.7.14\n", RuleDuplicate, api.SeverityWarning},
		{"textual pins differing in case", "foo==1.0RC1\nfoo==1.0rc1\n", RuleDuplicate, api.SeverityWarning},
		{"different pins", "plotly==6.2.0\nplotly==5.0.0\n", RuleConflict, api.SeverityError},
		{"pin below bound", "numpy>=1.26\nnumpy==1.20.0\n", RuleConflict, api.SeverityError},
		{"textual pins", "foo==1.0rc1\nfoo==1.0rc2\n", RuleConflict, api.SeverityError},
		{"textual pin and bound", "foo==1.0rc1\nfoo>=0.9\n", RuleDuplicate, api.SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Lint(parse(t, tt.content), Options{})
			require.Len(t, diags, 1)
			assert.Equal(t, tt.wantRule, diags[0].Rule)
			assert.Equal(t, tt.wantSev, diags[0].Severity)
			assert.Equal(t, 2, diags[0].Line)
		})
	}
}

func TestLint_DuplicatesComparedWithEveryEarlierEntry(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantRules []string
		wantRef   int
	}{
		{
			name:      "unconstrained first",
			content:   "numpy\nnumpy==1.0\nnumpy==2.0\n",
			wantRules: []string{RuleDuplicate, RuleConflict},
			wantRef:   2,
		},
		{
			name:      "bound then pins",
			content:   "numpy>=1.0\nnumpy==1.5\nnumpy==1.6\n",
			wantRules: []string{RuleDuplicate, RuleConflict},
			wantRef:   2,
		},
		{
			name:      "textual pins after unconstrained",
			content:   "foo\nfoo==1.0rc1\nfoo==1.0rc2\n",
			wantRules: []string{RuleDuplicate, RuleConflict},
			wantRef:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Lint(parse(t, tt.content), Options{})
			require.Equal(t, tt.wantRules, rules(diags))
			assert.Equal(t, 3, diags[1].Line)
			assert.Equal(t, api.SeverityError, diags[1].Severity)
			assert.Contains(t, diags[1].Message, fmt.Sprintf("on line %d", tt.wantRef))
		})
	}
}

func TestLint_SortedByLine(t *testing.T) {
	diags := Lint(parse(t, "numpy==1.0\nscipy<=1\nnumpy==2.0\n"), Options{})

	lines := make([]int, len(diags))
	for i, d := range diags {
		lines[i] = d.Line
	}
	assert.Equal(t, []int{2, 3}, lines)
	assert.Equal(t, []string{RuleEntryFormat, RuleConflict}, rules(diags))
}

func TestParseDiagnostics(t *testing.T) {
	assert.Nil(t, ParseDiagnostics(nil))

	_, err := requirements.Parse("requirements.txt", []byte("numpy\npandas 2.0\nscipy>=\n"))
	require.Error(t, err)

	diags := ParseDiagnostics(err)
	require.Len(t, diags, 2)
	assert.Equal(t, []string{RuleParse, RuleParse}, rules(diags))
	assert.Equal(t, 2, diags[0].Line)
	assert.Equal(t, 3, diags[1].Line)

	diags = ParseDiagnostics(errors.New("boom"))
	require.Len(t, diags, 1)
	assert.Equal(t, 0, diags[0].Line)
	assert.Equal(t, "boom", diags[0].Message)
}
