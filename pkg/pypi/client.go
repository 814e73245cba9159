// Package pypi is a small read-only client for the PyPI JSON API.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simonkienzler/reqsniffer/pkg/cache"
	"github.com/simonkienzler/reqsniffer/pkg/requirements"
)

const (
	DefaultURL         = "https://pypi.org/pypi"
	DefaultConcurrency = 8

	httpTimeout   = 10 * time.Second
	retryAttempts = 3
)

var (
	// ErrNotFound is returned when the registry does not know a package.
	ErrNotFound = errors.New("package not found")
	// ErrNetwork is returned for transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")
)

// PackageInfo is the subset of the registry metadata reqsniffer uses.
type PackageInfo struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Summary  string   `json:"summary,omitempty"`
	Releases []string `json:"releases,omitempty"`
	Yanked   []string `json:"yanked,omitempty"`
}

// HasRelease reports whether version was ever published. Versions are
// matched the way pip matches a pin, so "1.26" finds release "1.26.0".
func (p *PackageInfo) HasRelease(version string) bool {
	return containsVersion(p.Releases, version)
}

// IsYanked reports whether every file of version was yanked.
func (p *PackageInfo) IsYanked(version string) bool {
	return containsVersion(p.Yanked, version)
}

func containsVersion(versions []string, version string) bool {
	want := requirements.CanonicalVersion(version)
	for _, v := range versions {
		if requirements.CanonicalVersion(v) == want {
			return true
		}
	}
	return false
}

type Client struct {
	http        *http.Client
	cache       *cache.Cache
	logger      *zap.Logger
	baseURL     string
	concurrency int
	retryDelay  time.Duration
}

// NewClient creates a client for the registry at baseURL. An empty baseURL
// uses DefaultURL and a nil cache disables caching.
func NewClient(baseURL string, c *cache.Cache, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:        &http.Client{Timeout: httpTimeout},
		cache:       c.Namespace("pypi:"),
		logger:      logger,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		concurrency: DefaultConcurrency,
		retryDelay:  time.Second,
	}
}

// WithConcurrency bounds the number of parallel requests made by FetchAll.
func (c *Client) WithConcurrency(n int) *Client {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

// FetchPackage returns the registry metadata for name. With refresh set the
// cache is bypassed. A package the registry does not know yields an error
// matching ErrNotFound.
func (c *Client) FetchPackage(ctx context.Context, name string, refresh bool) (*PackageInfo, error) {
	name = requirements.NormalizeName(name)

	var info PackageInfo
	if !refresh {
		ok, err := c.cache.Get(name, &info)
		if ok {
			c.logger.Debug("Registry cache hit", zap.String("package", name))
			return &info, nil
		}
		if err != nil && !errors.Is(err, cache.ErrExpired) {
			c.logger.Warn("Reading registry cache failed", zap.String("package", name), zap.Error(err))
		}
	}

	err := retry(ctx, retryAttempts, c.retryDelay, func() error {
		return c.fetch(ctx, name, &info)
	})
	if err != nil {
		return nil, zerr.With(err, "package", name)
	}

	if err := c.cache.Set(name, &info); err != nil {
		c.logger.Warn("Writing registry cache failed", zap.String("package", name), zap.Error(err))
	}
	return &info, nil
}

// FetchAll looks up every package concurrently. Packages the registry does
// not know are returned in missing; any other failure aborts the lookup.
func (c *Client) FetchAll(ctx context.Context, names []string, refresh bool) (found map[string]*PackageInfo, missing []string, err error) {
	found = make(map[string]*PackageInfo, len(names))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, name := range names {
		g.Go(func() error {
			info, err := c.FetchPackage(ctx, name, refresh)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrNotFound):
				missing = append(missing, name)
				return nil
			case err != nil:
				return err
			}
			found[name] = info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, zerr.Wrap(err, "registry lookup failed")
	}

	sort.Strings(missing)
	return found, missing, nil
}

func (c *Client) fetch(ctx context.Context, name string, info *PackageInfo) error {
	url := fmt.Sprintf("%s/%s/json", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Querying registry", zap.String("url", url))

	resp, err := c.http.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode >= 500:
		return &retryableError{err: fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("decoding registry response for %s: %w", name, err)
	}

	*info = data.toInfo()
	return nil
}

type apiResponse struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Summary string `json:"summary"`
	} `json:"info"`
	Releases map[string][]struct {
		Yanked bool `json:"yanked"`
	} `json:"releases"`
}

func (r *apiResponse) toInfo() PackageInfo {
	info := PackageInfo{
		Name:    r.Info.Name,
		Version: r.Info.Version,
		Summary: r.Info.Summary,
	}

	for version, files := range r.Releases {
		info.Releases = append(info.Releases, version)
		if len(files) == 0 {
			continue
		}
		yanked := true
		for _, f := range files {
			yanked = yanked && f.Yanked
		}
		if yanked {
			info.Yanked = append(info.Yanked, version)
		}
	}
	sort.Strings(info.Releases)
	sort.Strings(info.Yanked)

	return info
}
