package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/simonkienzler/reqsniffer/internal/log"
	"github.com/simonkienzler/reqsniffer/pkg/cache"
	"github.com/simonkienzler/reqsniffer/pkg/config"
	"github.com/simonkienzler/reqsniffer/pkg/lint"
	"github.com/simonkienzler/reqsniffer/pkg/pypi"
	"github.com/simonkienzler/reqsniffer/pkg/scorer"
)

const defaultManifest = "requirements.txt"

var (
	// ErrCheckFailed is returned when a manifest has problems. The report has
	// already been printed at that point.
	ErrCheckFailed = errors.New("requirements check failed")
	// ErrRemotePath is returned for git URLs, which are not supported.
	ErrRemotePath = errors.New("remote repository paths are not yet supported")
)

type options struct {
	cfgFile string
	verbose bool
	format  string
	online  bool
	refresh bool
	strict  bool
}

// NewRootCmd builds the reqsniffer command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "reqsniffer [local path ...] [flags]",
		Short: "Checks the contents of your requirements.txt",
		Long: `reqsniffer validates pip requirements manifests: every entry must be a
package name optionally followed by ==version or >=version, versions must be
valid, and no package may be listed twice with conflicting constraints.
Entries are scored against preferred versions from the config file and,
with --online, against the latest releases on PyPI.

The simulate and generate subcommands run the bowling simulator the
manifest's dependencies were collected for.`,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	home := os.Getenv("HOME")
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", filepath.Join(home, ".reqsniffer.yaml"), "config file")
	flags.BoolVar(&opts.verbose, "verbose", true, "print detailed scores per package")
	flags.StringVar(&opts.format, "format", string(scorer.FormatPretty), "output format: pretty or json")
	flags.BoolVar(&opts.online, "online", false, "check packages against the PyPI registry")
	flags.BoolVar(&opts.refresh, "refresh", false, "bypass the registry cache")
	flags.BoolVar(&opts.strict, "strict", false, "treat warnings as failures")

	cmd.AddCommand(newSimulateCmd(opts), newGenerateCmd(opts))

	return cmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCmd().Execute()
}

func args(cmd *cobra.Command, args []string) error {
	if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
		return err
	}

	for _, arg := range args {
		if err := validate(arg); err != nil {
			return err
		}
	}
	return nil
}

// prepare builds the logger and loads the config shared by all commands.
// The caller syncs the logger.
func prepare(cmd *cobra.Command, opts *options) (*zap.Logger, config.ReqSnifferConfig, scorer.Format, error) {
	logger, err := log.NewAtLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, config.ReqSnifferConfig{}, "", err
	}

	format, err := scorer.ParseFormat(opts.format)
	if err != nil {
		return nil, config.ReqSnifferConfig{}, "", err
	}

	conf, err := config.Load(opts.cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, config.ReqSnifferConfig{}, "", err
	}
	logger.Debug("Loaded config",
		zap.String("path", opts.cfgFile),
		zap.Int("preferredVersions", len(conf.PreferredVersions)))

	return logger, conf, format, nil
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	logger, conf, format, err := prepare(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	files := make([]string, 0, len(args))
	for _, arg := range args {
		logger.Debug("Argument provided", zap.String("path", arg))
		path, err := getRequirementsFileFromPathArgument(arg)
		if err != nil {
			return err
		}
		files = append(files, path)
	}

	svc := scorer.Service{
		Logger:               logger,
		RequirementsFileList: files,
		PreferredVersions:    conf.PreferredVersions,
		LintOptions: lint.Options{
			AllowedOperators:   conf.AllowedOperators,
			AllowOptions:       conf.AllowOptions,
			RequireConstraints: conf.RequireConstraints,
		},
		Refresh: opts.refresh,
		Strict:  opts.strict,
	}

	if opts.online {
		registry, err := newRegistry(conf.PyPI, logger)
		if err != nil {
			return err
		}
		svc.Registry = registry
	}

	failed, err := svc.PerformAnalysis(cmd.Context(), cmd.OutOrStdout(), format, opts.verbose)
	if err != nil {
		return err
	}
	if failed {
		return ErrCheckFailed
	}
	return nil
}

func newRegistry(conf config.PyPIConfig, logger *zap.Logger) (*pypi.Client, error) {
	var store *cache.Cache
	if !conf.NoCache {
		ttl, err := conf.TTL()
		if err != nil {
			return nil, err
		}
		store, err = cache.New(conf.CacheDir, ttl)
		if err != nil {
			return nil, fmt.Errorf("creating registry cache: %w", err)
		}
		logger.Debug("Using registry cache", zap.String("dir", store.Dir()), zap.Duration("ttl", ttl))
	}

	return pypi.NewClient(conf.URL, store, logger).WithConcurrency(conf.Concurrency), nil
}

func getRequirementsFileFromPathArgument(path string) (string, error) {
	if isRemoteGitPath(path) {
		return "", ErrRemotePath
	}

	// user convenience: a directory means the requirements.txt inside it
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return filepath.Join(path, defaultManifest), nil
	}

	return path, nil
}

func validate(arg string) error {
	// we support remote git repos with ssh or https
	if isRemoteGitPath(arg) {
		return ErrRemotePath
	}

	// if no remote repo is given, we assume a local, accessible file
	path, err := getRequirementsFileFromPathArgument(arg)
	if err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return nil
	}

	return fmt.Errorf("%q needs to be a requirements file or a local directory containing a %s", arg, defaultManifest)
}

func isRemoteGitPath(path string) bool {
	return strings.HasPrefix(path, "ssh://") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://")
}
