// Package cli wires the impact-report commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/selectstar/dbt-impact-report-action/internal/catalog"
	"github.com/selectstar/dbt-impact-report-action/internal/config"
	"github.com/selectstar/dbt-impact-report-action/internal/output"
	"github.com/selectstar/dbt-impact-report-action/internal/scm"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

// classify picks the error code for a failure of the run pipeline.
func classify(err error) output.ErrorCode {
	var (
		catalogErr *catalog.APIError
		scmErr     *scm.APIError
		cfgErr     *config.ValidationError
	)
	switch {
	case errors.As(err, &catalogErr), errors.As(err, &scmErr):
		return output.ErrUpstream
	case errors.As(err, &cfgErr):
		return output.ErrValidation
	default:
		return output.ErrGeneral
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "impact-report",
		Short:         "Post a Select Star impact report for the dbt models changed by a pull request",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().Bool("json", false, "Output in JSON format")
	root.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringP("config", "c", "", "YAML config file")
	root.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment")

	root.AddCommand(newRunCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	w := output.New(jsonMode, quietMode)
	w.Stdout = cmd.OutOrStdout()
	w.Stderr = cmd.ErrOrStderr()
	return w
}

// loadConfig resolves the configuration for cmd, with cmd's flags as the
// highest-precedence layer.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(config.Options{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, cmdErr(err, output.ErrValidation)
	}
	return cfg, nil
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	return execute(NewRootCmd(), os.Args[1:], os.Stdout, os.Stderr)
}

func execute(root *cobra.Command, args []string, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		jsonMode, _ := root.PersistentFlags().GetBool("json")
		quietMode, _ := root.PersistentFlags().GetBool("quiet")
		w := output.New(jsonMode, quietMode)
		w.Stdout = stdout
		w.Stderr = stderr

		var ce *CmdError
		if errors.As(err, &ce) {
			return w.Error(ce.Err, ce.Code)
		}
		return w.Error(err, output.ErrGeneral)
	}
	return output.ExitSuccess
}
