package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"crossfit/internal/app"
	"crossfit/internal/browser"
	"crossfit/internal/config"
	"crossfit/internal/report"
	"crossfit/internal/storage"
	"crossfit/internal/wpruntime"
	logx "crossfit/pkg/logx"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if code, ok := exitCodeFromError(err); ok {
			os.Exit(code)
		}
		os.Exit(report.ExitUsage)
	}
}

// runError carries the exit code through cobra without printing twice.
type runError struct{ code int }

func (e runError) Error() string { return fmt.Sprintf("run failed (exit %d)", e.code) }

func exitCodeFromError(err error) (int, bool) {
	var re runError
	if errors.As(err, &re) {
		return re.code, true
	}
	return 0, false
}

func newRootCmd() *cobra.Command {
	var (
		opts        config.Options
		threshold   float64
		wpVersAlias string
		snapshotDir string
		historyPath string
		launchCmd   string
		logLevel    string
		logFile     string
	)

	cmd := &cobra.Command{
		Use:           "crossfit",
		Short:         "WordPress end-to-end regression harness",
		Long:          "crossfit reconstructs a WordPress site from a configuration bundle,\nexercises its pages through a browser, and flags regressions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Unknown flags pass through untouched so wrapper scripts can mix
		// crossfit flags with their own.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Threshold = threshold
			if opts.WPVersion == "" {
				opts.WPVersion = wpVersAlias
			}
			opts.FromEnv()

			level := logLevel
			if opts.Debug && level == "" {
				level = "DEBUG"
			}
			logSvc, log := logx.New(logx.Config{
				Level:   level,
				Console: true,
				File:    logx.FileConfig{Enabled: logFile != "", Path: logFile},
			})
			defer logSvc.Close()

			a, cleanup, err := buildApp(opts, snapshotDir, historyPath, launchCmd, log)
			if err != nil {
				return err
			}
			defer cleanup()

			if opts.Schedule != "" {
				return a.Watch(cmd.Context(), opts.Schedule)
			}

			_, code := a.RunOnce(cmd.Context())
			if code != report.ExitOK {
				return runError{code: code}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Blueprint, "blueprint", "", "provisioning blueprint path or URL")
	f.StringSliceVar(&opts.Imports, "import", nil, "content-import file path or URL (repeatable)")
	f.StringVar(&opts.Theme, "theme", "", "theme spec: slug[@version], path, or URL")
	f.StringSliceVar(&opts.Plugins, "plugin", nil, "plugin specs, same grammar as --theme")
	f.StringVar(&opts.WPVersion, "wp-version", "", "WordPress version pin")
	f.StringVar(&wpVersAlias, "wpversion", "", "alias of --wp-version")
	f.StringVar(&opts.SiteHealth, "site-health", "", "Site-Health report dump to reconstruct from")
	f.BoolVar(&opts.UpgradeAll, "upgrade-all", false, "strip all version pins")
	f.BoolVar(&opts.FullMode, "full", false, "exhaustive discovery traversal")
	f.BoolVar(&opts.Debug, "debug", false, "verbose diagnostics")
	f.BoolVar(&opts.Capture, "capture", false, "write or refresh snapshot baselines")
	f.BoolVar(&opts.ClearSnapshots, "clear-snapshots", false, "delete the snapshot store, then skip visual diff")
	f.BoolVar(&opts.SkipSnapshots, "skip-snapshots", false, "disable visual diff")
	f.Float64Var(&threshold, "threshold", -1, "visual-diff tolerance in [0,1]; 0 rejects any diff")
	f.Float64Var(&threshold, "screenshot-threshold", -1, "alias of --threshold")
	f.IntVar(&opts.DebugLogLines, "debug-log", 0, "print last n lines of the PHP error log on teardown")
	f.StringVar(&opts.Schedule, "schedule", "", "watch mode: re-run cadence (cron expression or duration)")

	f.StringVar(&snapshotDir, "snapshot-dir", "__snapshots__", "snapshot store directory")
	f.StringVar(&historyPath, "history", "", "run-history file (.db/.sqlite selects the sqlite store; empty disables history)")
	f.StringVar(&launchCmd, "launch-cmd", "", "site launcher argv ({mount} {blueprint} {wp} {php} placeholders)")
	f.StringVar(&logLevel, "log-level", "", "log level (TRACE..ERROR)")
	f.StringVar(&logFile, "log-file", "", "append logs to this file")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func buildApp(opts config.Options, snapshotDir, historyPath, launchCmd string, log logx.Logger) (*app.App, func(), error) {
	br, err := browser.NewHTTPBrowser()
	if err != nil {
		return nil, nil, err
	}

	var launcher wpruntime.Launcher
	if strings.TrimSpace(launchCmd) != "" {
		launcher = &wpruntime.ProcessLauncher{
			Command: strings.Fields(launchCmd),
			Log:     log.With(logx.String("comp", "launcher")),
		}
	}

	var history storage.Store
	cleanup := func() {}
	if historyPath != "" {
		history, err = storage.Open(storage.Config{Driver: storage.DriverForPath(historyPath), Path: historyPath}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open history: %w", err)
		}
		cleanup = func() { _ = history.Close() }
	}

	return &app.App{
		Opts:        opts,
		Launcher:    launcher,
		Browser:     br,
		History:     history,
		SnapshotDir: snapshotDir,
		Log:         log,
	}, cleanup, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the crossfit version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "crossfit", version)
		},
	}
}
