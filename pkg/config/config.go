package config

import (
	"fmt"
	"os"
	"time"

	"github.com/brumhard/alligotor"
	"go.trai.ch/zerr"

	"github.com/simonkienzler/reqsniffer/pkg/requirements"
	"github.com/simonkienzler/reqsniffer/pkg/simulator"
)

// EnvPrefix prefixes every environment override, e.g. REQSNIFFER_PYPI_URL.
const EnvPrefix = "REQSNIFFER"

type ReqSnifferConfig struct {
	PreferredVersions  PreferredVersions  `yaml:"preferredVersions"`
	AllowedOperators   []string           `yaml:"allowedOperators"`
	AllowOptions       bool               `yaml:"allowOptions"`
	RequireConstraints bool               `yaml:"requireConstraints"`
	PyPI               PyPIConfig         `yaml:"pypi"`
	Simulation         SimulationConfig   `yaml:"simulation"`
}

type PreferredVersion struct {
	Name             string `yaml:"name"`
	PreferredVersion string `yaml:"preferredVersion"`
}

type PreferredVersions []PreferredVersion

type PyPIConfig struct {
	URL         string `yaml:"url"`
	CacheDir    string `yaml:"cacheDir"`
	CacheTTL    string `yaml:"cacheTTL"`
	Concurrency int    `yaml:"concurrency"`
	NoCache     bool   `yaml:"noCache"`
}

// SimulationConfig drives the simulate and generate commands.
type SimulationConfig struct {
	Physics     simulator.Physics `yaml:"physics"`
	Delivery    simulator.Params  `yaml:"delivery"`
	Ranges      simulator.Ranges  `yaml:"ranges"`
	LogDir      string            `yaml:"logDir"`
	Concurrency int               `yaml:"concurrency"`
	Seed        uint64            `yaml:"seed"`
}

// TTL parses CacheTTL. An empty value means one day.
func (p PyPIConfig) TTL() (time.Duration, error) {
	if p.CacheTTL == "" {
		return 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(p.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid pypi.cacheTTL %q: %w", p.CacheTTL, err)
	}
	return ttl, nil
}

// Default returns the configuration used when no file is present.
func Default() ReqSnifferConfig {
	return ReqSnifferConfig{
		PyPI: PyPIConfig{
			URL:         "https://pypi.org/pypi",
			CacheTTL:    "24h",
			Concurrency: 8,
		},
		Simulation: SimulationConfig{
			Physics:     simulator.DefaultPhysics(),
			Delivery:    simulator.DefaultParams(),
			Ranges:      simulator.DefaultRanges(),
			Concurrency: 4,
		},
	}
}

// Load reads the config file at path and applies environment overrides on
// top of Default. A missing file is only an error when required is set.
func Load(path string, required bool) (ReqSnifferConfig, error) {
	conf := Default()

	if _, err := os.Stat(path); err != nil {
		if required || !os.IsNotExist(err) {
			return conf, zerr.With(zerr.Wrap(err, "config file not readable"), "path", path)
		}
		path = ""
	}

	var sources []alligotor.ConfigSource
	if path != "" {
		sources = append(sources, alligotor.NewFilesSource(path))
	}
	sources = append(sources, alligotor.NewEnvSource(EnvPrefix))

	if err := alligotor.New(sources...).Get(&conf); err != nil {
		return conf, zerr.With(zerr.Wrap(err, "loading config failed"), "path", path)
	}

	if _, err := conf.PyPI.TTL(); err != nil {
		return conf, err
	}
	if err := conf.Simulation.Physics.Validate(); err != nil {
		return conf, zerr.Wrap(err, "invalid simulation.physics")
	}

	return conf, nil
}

// Lookup returns the preferred version configured for a package. Names are
// compared in normalized form.
func (p PreferredVersions) Lookup(name string) (string, bool) {
	name = requirements.NormalizeName(name)
	for _, pv := range p {
		if requirements.NormalizeName(pv.Name) == name {
			return pv.PreferredVersion, true
		}
	}
	return "", false
}
