package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"xinfo/internal/config"
	"xinfo/internal/logging"
)

// options are the persistent flags shared by every command.
type options struct {
	binary     string
	version    int
	force      bool
	verbose    bool
	quiet      bool
	output     string
	cacheDir   string
	configPath string
	noCache    bool

	fs     afero.Fs
	getenv func(string) string
	run    config.Runner
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	o := &options{
		fs:     afero.NewOsFs(),
		getenv: os.Getenv,
		run:    config.ExecRunner,
		stderr: os.Stderr,
	}

	cmd := &cobra.Command{
		Use:   "xinfo",
		Short: "Command line utility to display X$ table meta-information",
		Long: `xinfo decodes the X$ table metadata compiled into an Oracle Database
executable: the table directory (kqftab), the table attachments (kqftap),
the column descriptors and the conversion operators (kqfcop).

The binary is never executed. Decoded tables are cached per binary and
version; use --force to rebuild the cache.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	o.bindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newListCmd(o),
		newDescCmd(o),
		newDisasmCmd(o),
		newGraphCmd(o),
		newInfoCmd(o),
		newVersionCmd(),
	)
	return cmd
}

// bindFlags registers the persistent flags on pf.
func (o *options) bindFlags(pf *pflag.FlagSet) {
	pf.StringVarP(&o.binary, "ora-binary", "b", "",
		"path to the Oracle binary (default $ORACLE_HOME/bin/oracle)")
	pf.IntVar(&o.version, "ora-version", 0,
		"major Oracle version, such as 19, 23 (default from $ORACLE_HOME/bin/oraversion)")
	pf.BoolVarP(&o.force, "force", "f", false, "refresh the local cache")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVarP(&o.quiet, "quiet", "q", false, "only show warnings and errors")
	pf.StringVarP(&o.output, "output", "o", "", "output format: table, json or html")
	pf.StringVar(&o.cacheDir, "cache-dir", "", "cache directory (default $XDG_CACHE_HOME/xinfo)")
	pf.BoolVar(&o.noCache, "no-cache", false, "decode without reading or writing the cache")
	pf.StringVar(&o.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/xinfo/config.yaml)")
}

var errVerboseQuiet = errors.New("--verbose and --quiet are mutually exclusive")

// resolve builds the run configuration: defaults, config file, flags, then
// ORACLE_HOME for whatever is still missing.
func (o *options) resolve(ctx context.Context) (config.Config, zerolog.Logger, error) {
	nop := zerolog.Nop()
	if o.verbose && o.quiet {
		return config.Config{}, nop, errVerboseQuiet
	}

	cfg := config.Default()
	path, required := o.configPath, o.configPath != ""
	if path == "" {
		path, _ = config.DefaultPath()
	}
	if path != "" {
		fileCfg, err := config.LoadFile(o.fs, path, required)
		if err != nil {
			return cfg, nop, err
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(config.Config{
		Binary:   o.binary,
		Version:  o.version,
		Refresh:  o.force,
		CacheDir: o.cacheDir,
		Output:   o.output,
	})
	if o.verbose || o.quiet {
		cfg.LogLevel = logging.LevelFromFlags(o.verbose, o.quiet)
	}

	lcfg := logging.DefaultConfig()
	lcfg.Level = cfg.LogLevel
	lcfg.Output = o.stderr
	logger := logging.New(lcfg)
	env := config.Env{Fs: o.fs, Getenv: o.getenv, Run: o.run, Logger: logging.NewWithComponent(lcfg, "config")}
	if err := cfg.Resolve(ctx, env); err != nil {
		return cfg, logger, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, logger, err
	}
	logger.Debug().Str("binary", cfg.Binary).Int("version", cfg.Version).
		Bool("refresh", cfg.Refresh).Str("output", cfg.Output).Msg("configuration")
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("xinfo version %s\n", version)
		},
	}
}
