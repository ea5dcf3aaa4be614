package config

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Runner runs a command and returns its combined output and exit code.
type Runner func(ctx context.Context, name string, args ...string) (output string, exitCode int, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (string, int, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, exitErr.ExitCode(), nil
	}
	if err != nil {
		return output, -1, err
	}
	return output, 0, nil
}

// Env is the part of the process environment used to fill in defaults.
type Env struct {
	Fs     afero.Fs
	Getenv func(string) string
	Run    Runner
	Logger zerolog.Logger
}

func (e Env) exists(path string) bool {
	ok, err := afero.Exists(e.Fs, path)
	return err == nil && ok
}

// OracleBinary returns $ORACLE_HOME/bin/oracle.
func OracleBinary(env Env) (string, error) {
	oh := env.Getenv("ORACLE_HOME")
	if oh == "" {
		return "", fmt.Errorf("%w: Oracle binary path is not specified, and ORACLE_HOME is not set", ErrOracleHome)
	}
	bin := filepath.Join(oh, "bin", "oracle")
	if !env.exists(bin) {
		return "", fmt.Errorf("%w: Wrong ORACLE_HOME = %s. %s does not exist", ErrOracleHome, oh, bin)
	}
	return bin, nil
}

// OracleVersion runs $ORACLE_HOME/bin/oraversion -majorVersion.
func OracleVersion(ctx context.Context, env Env) (int, error) {
	oh := env.Getenv("ORACLE_HOME")
	if oh == "" {
		return 0, fmt.Errorf("%w: Oracle version is not specified, and ORACLE_HOME is not set", ErrOracleHome)
	}
	bin := filepath.Join(oh, "bin", "oraversion")
	if !env.exists(bin) {
		return 0, fmt.Errorf("%w: Wrong ORACLE_HOME = %s. %s does not exist", ErrOracleHome, oh, bin)
	}

	cmd := bin + " -majorVersion"
	env.Logger.Debug().Str("cmd", cmd).Msg("running")
	output, code, err := env.Run(ctx, bin, "-majorVersion")
	env.Logger.Debug().Int("exitcode", code).Str("output", output).Msg("finished")
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrOraVersion, cmd, err)
	}
	if code != 0 {
		return 0, fmt.Errorf("%w: Unexpected exitcode = %d output = %q command = %q", ErrOraVersion, code, output, cmd)
	}
	v, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("%w: Cannot convert Oracle version to number: %q", ErrOraVersion, output)
	}
	return v, nil
}

// Resolve fills in the binary and version from ORACLE_HOME when they were
// not given, and checks that the binary exists.
func (c *Config) Resolve(ctx context.Context, env Env) error {
	if c.Binary == "" {
		bin, err := OracleBinary(env)
		if err != nil {
			return err
		}
		c.Binary = bin
	} else if !env.exists(c.Binary) {
		return fmt.Errorf("%w: %s does not exist", ErrInvalid, c.Binary)
	}
	if c.Version == 0 {
		v, err := OracleVersion(ctx, env)
		if err != nil {
			return err
		}
		c.Version = v
	}
	return nil
}
