package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func TestCache_SetGet(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	require.NoError(t, c.Set("numpy", entry{Name: "numpy", Version: "2.3.1"}))

	var got entry
	ok, err := c.Get("numpy", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry{Name: "numpy", Version: "2.3.1"}, got)
}

func TestCache_Miss(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	var got entry
	ok, err := c.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Expired(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Set("old", entry{Name: "old"}))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(c.keyPath("old"), past, past))

	var got entry
	ok, err := c.Get("old", &got)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCache_NoExpiry(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, c.Set("k", entry{Name: "k"}))
	past := time.Now().Add(-24 * 365 * time.Hour)
	require.NoError(t, os.Chtimes(c.keyPath("k"), past, past))

	var got entry
	ok, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_Namespace(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	pypi := c.Namespace("pypi:")
	require.NoError(t, pypi.Set("numpy", entry{Name: "from-pypi"}))

	var got entry
	ok, err := c.Get("numpy", &got)
	require.NoError(t, err)
	assert.False(t, ok, "unprefixed key must not see namespaced entry")

	ok, err = c.Get("pypi:numpy", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-pypi", got.Name)
}

func TestCache_Nil(t *testing.T) {
	var c *Cache

	require.NoError(t, c.Set("k", entry{}))
	ok, err := c.Get("k", &entry{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, c.Namespace("x"))
}

func TestNew_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := New(dir, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, dir, c.Dir())
	assert.Equal(t, time.Hour, c.TTL())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
