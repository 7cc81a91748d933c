package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dshills/ai-peer-review/internal/config"
)

// version is overridden at build time with -ldflags "-X ...cli.version=...".
var version = "0.3.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// exitError carries the process exit code for an error returned by a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: ExitUsageError, err: fmt.Errorf(format, args...)}
}

func runtimeError(err error) error {
	return &exitError{code: ExitRuntimeError, err: err}
}

func authError(err error) error {
	return &exitError{code: ExitAuthError, err: err}
}

// silentExit ends the command with code once the failure was already
// reported to the user.
type silentExit struct{ code int }

func (s silentExit) Error() string { return fmt.Sprintf("exit status %d", s.code) }

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFile string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           config.AppName,
		Short:         "AI-based peer review of academic papers",
		Long:          "ai-peer-review sends a paper to several language models, saves their reviews, and writes an anonymised meta-review with a table of the concerns each model raised.",
		Version:       version,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Arguments parsed fine; failures from here on are not usage errors.
			cmd.SilenceUsage = true
			setVerbosity(cmd.ErrOrStderr(), opts.verbosity)
			if opts.configFile == "" {
				opts.configFile = os.Getenv(config.ConfigFileEnv)
			}
			if err := config.LoadDotEnv(".env"); err != nil {
				return runtimeError(err)
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configFile, "config-file", "", "Path to a custom configuration file (env "+config.ConfigFileEnv+")")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "Issue INFO (-v) or DEBUG (-vv) output")

	cmd.AddCommand(
		newReviewCmd(opts),
		newConfigCmd(opts),
		newListModelsCmd(),
		newModelsCmd(opts),
		newCacheCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Run executes the command line and returns the process exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var silent silentExit
	if errors.As(err, &silent) {
		return silent.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if errors.Is(err, context.Canceled) {
		return ExitRuntimeError
	}
	// Anything else comes from cobra: bad flags, arguments or commands.
	return ExitUsageError
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print ai-peer-review version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", config.AppName, version)
		},
	}
}
