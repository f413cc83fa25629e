package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"page-loader/internal/config"
	"page-loader/internal/loader"
	"page-loader/pkg/types"
)

type options struct {
	output     string
	configPath string
	logLevel   string
	render     bool
	noProgress bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// execute runs the command and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", types.UserMessage(err))
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "page-loader <url>",
		Short:         "Download a web page and its local resources",
		Args:          cobra.ExactArgs(1),
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, args[0], opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output directory (default: current directory)")
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&opts.render, "render", false, "render the page in headless Chrome before parsing")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, rawURL string, opts *options, stdout, stderr io.Writer) error {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = *loaded
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(opts.logLevel))
	}
	if opts.render {
		cfg.Rendering.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := config.BuildLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}

	target, err := types.NewPageTarget(rawURL, opts.output)
	if err != nil {
		return err
	}

	var loaderOpts []loader.Option
	var progress *progressBar
	if !opts.noProgress && isTerminal(stderr) {
		progress = newProgressBar(stderr)
		loaderOpts = append(loaderOpts, loader.WithObserver(progress))
	}

	l, err := loader.New(cfg, logger, loaderOpts...)
	if err != nil {
		return err
	}
	path, err := l.Load(ctx, target)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Page was successfully downloaded into %s\n", displayPath(path))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// displayPath shows path relative to the working directory, prefixed with
// the directory's own name, eg. "project/example-com.html" or
// "project/../out/example-com.html".
func displayPath(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return path
	}
	// Join would clean away the ".." segments.
	return filepath.Base(cwd) + string(filepath.Separator) + rel
}
