package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/simonkienzler/reqsniffer/pkg/config"
)

func setup(t *testing.T, manifest string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOG_LEVEL", "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultManifest), []byte(manifest), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Clean(t *testing.T) {
	dir := setup(t, "# Core requirements\nstreamlit==1.46.1\nnumpy>=1.26.0\n")

	out, err := execute(t, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "streamlit")
	assert.Contains(t, out, "Final Score: 0")
}

func TestRootCmd_Failures(t *testing.T) {
	dir := setup(t, "numpy==1.26.0\nnumpy==2.0.0\n")

	out, err := execute(t, filepath.Join(dir, defaultManifest))
	require.ErrorIs(t, err, ErrCheckFailed)
	assert.Contains(t, out, "conflict")
}

func TestRootCmd_StrictWarnings(t *testing.T) {
	dir := setup(t, "numpy>=1.26\nnumpy>=1.26\n")

	_, err := execute(t, dir)
	require.NoError(t, err)

	_, err = execute(t, "--strict", dir)
	require.ErrorIs(t, err, ErrCheckFailed)
}

func TestRootCmd_JSON(t *testing.T) {
	dir := setup(t, "numpy>=1.26\n")

	out, err := execute(t, "--format", "json", dir)
	require.NoError(t, err)

	var reports []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, filepath.Join(dir, defaultManifest), reports[0]["path"])
}

func TestRootCmd_InvalidArguments(t *testing.T) {
	dir := setup(t, "numpy\n")

	tests := []struct {
		name string
		args []string
	}{
		{name: "no arguments", args: nil},
		{name: "remote path", args: []string{"https://github.com/user/repo"}},
		{name: "missing path", args: []string{filepath.Join(dir, "nope.txt")}},
		{name: "directory without manifest", args: []string{t.TempDir()}},
		{name: "unknown format", args: []string{"--format", "yaml", dir}},
		{name: "explicit missing config", args: []string{"--config", filepath.Join(dir, "absent.yaml"), dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrCheckFailed))
		})
	}
}

func TestGetRequirementsFileFromPathArgument(t *testing.T) {
	dir := t.TempDir()

	path, err := getRequirementsFileFromPathArgument(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, defaultManifest), path)

	path, err = getRequirementsFileFromPathArgument("requirements-dev.txt")
	require.NoError(t, err)
	assert.Equal(t, "requirements-dev.txt", path)

	for _, remote := range []string{"ssh://git@host/repo", "git@github.com:user/repo.git", "https://github.com/user/repo"} {
		_, err := getRequirementsFileFromPathArgument(remote)
		assert.ErrorIs(t, err, ErrRemotePath, remote)
	}
}

func TestNewRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"info": {"name": "numpy", "version": "2.3.1"}, "releases": {"2.3.1": [{}]}}`)
	}))
	defer srv.Close()

	reg, err := newRegistry(config.PyPIConfig{URL: srv.URL, CacheDir: t.TempDir(), CacheTTL: "1h", Concurrency: 2}, zap.NewNop())
	require.NoError(t, err)

	info, err := reg.FetchPackage(context.Background(), "numpy", false)
	require.NoError(t, err)
	assert.Equal(t, "2.3.1", info.Version)

	_, err = newRegistry(config.PyPIConfig{CacheTTL: "whenever"}, zap.NewNop())
	require.Error(t, err)
}
