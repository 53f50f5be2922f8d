// Package app is the composition root: it resolves the provisioning plan,
// brings the site up, generates the suite, runs it, and reports.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"crossfit/internal/browser"
	"crossfit/internal/config"
	"crossfit/internal/discovery"
	"crossfit/internal/harness"
	"crossfit/internal/inspect"
	"crossfit/internal/provision"
	"crossfit/internal/report"
	"crossfit/internal/slugs"
	"crossfit/internal/snapshot"
	"crossfit/internal/storage"
	"crossfit/internal/wpruntime"
	logx "crossfit/pkg/logx"
)

// App wires one run end to end. Collaborators are injected so tests can
// swap the runtime and the browser driver.
type App struct {
	Opts     config.Options
	Launcher wpruntime.Launcher
	Browser  browser.Browser
	History  storage.Store

	// SnapshotDir is where baselines live; empty means ./__snapshots__.
	SnapshotDir string

	Out io.Writer
	Log logx.Logger

	lastDigest string
}

// RunOnce executes a full cycle and returns the summary plus the exit
// code to use. Setup problems (the site never came up) map to ExitSetup;
// test failures map to ExitFailed.
func (a *App) RunOnce(ctx context.Context) (report.Summary, int) {
	start := time.Now()

	site, ownSite, err := a.acquireSite(ctx)
	if err != nil {
		a.Log.Error("site acquisition failed", logx.Err(err))
		return report.Summary{}, report.ExitSetup
	}
	if ownSite {
		defer func() {
			if err := site.Stop(context.WithoutCancel(ctx)); err != nil {
				a.Log.Warn("site teardown", logx.Err(err))
			}
		}()
	}

	doc := a.readDiscovery(site)

	mgr, err := a.snapshotManager()
	if err != nil {
		a.Log.Error("snapshot store", logx.Err(err))
		return report.Summary{}, report.ExitSetup
	}

	insp := &inspect.Inspector{Snapshots: mgr, Log: a.Log.With(logx.String("comp", "inspect"))}
	suite := harness.BuildSuite(site, doc, insp, harness.SuiteConfig{Full: a.Opts.FullMode})

	runner := &harness.Runner{
		Browser: a.Browser,
		Log:     a.Log.With(logx.String("comp", "harness")),
	}
	results := runner.Run(ctx, suite)

	summary := report.Summary{Results: results, Duration: time.Since(start)}

	printer := report.NewPrinter(a.out())
	printer.Print(summary)
	printer.PrintDebugLog(site.DebugLogPath, a.Opts.DebugLogLines)

	a.recordRun(ctx, summary)
	return summary, summary.ExitCode()
}

// acquireSite either attaches to a site announced via the environment or
// provisions a fresh one. The bool reports whether teardown is ours.
func (a *App) acquireSite(ctx context.Context) (*wpruntime.Site, bool, error) {
	if url := os.Getenv(config.EnvSiteURL); url != "" {
		a.Log.Info("attaching to running site", logx.String("url", url))
		site := wpruntime.NewSite(url, "", nil, a.Log)
		if dl := os.Getenv(config.EnvSiteDebugLog); dl != "" {
			site.DebugLogPath = dl
		}
		return site, false, nil
	}

	if a.Launcher == nil {
		return nil, false, errors.New("no site URL in environment and no launcher configured")
	}

	hostMount, err := os.MkdirTemp("", "crossfit-site-")
	if err != nil {
		return nil, false, fmt.Errorf("create mount: %w", err)
	}

	resolver := &config.Resolver{
		Opts:      a.Opts,
		HostMount: hostMount,
		Slugs:     slugs.New(a.Log.With(logx.String("comp", "slugs"))),
		HTTP:      http.DefaultClient,
		Log:       a.Log.With(logx.String("comp", "resolve")),
	}
	pl := resolver.Resolve(ctx)
	a.Log.Info("plan resolved",
		logx.String("wp", pl.WPVersion),
		logx.String("php", pl.PHPVersion),
		logx.String("digest", pl.Digest()))

	site, err := provision.New(a.Launcher, a.Log.With(logx.String("comp", "provision"))).
		Provision(ctx, pl, hostMount)
	if err != nil {
		return nil, false, err
	}
	a.lastDigest = pl.Digest()
	return site, true, nil
}

func (a *App) readDiscovery(site *wpruntime.Site) *discovery.Document {
	path, err := discovery.Locate("", site.HostMount)
	if err != nil {
		a.Log.Warn("discovery document not found; core pages only", logx.Err(err))
		return nil
	}
	doc, err := discovery.Read(path, a.Log.With(logx.String("comp", "discovery")))
	if err != nil {
		a.Log.Warn("discovery document unreadable", logx.Err(err))
		return nil
	}
	return doc
}

func (a *App) snapshotManager() (*snapshot.Manager, error) {
	dir := a.SnapshotDir
	if dir == "" {
		dir = "__snapshots__"
	}
	mode := snapshot.ModeCompare
	switch {
	case a.Opts.ClearSnapshots:
		mode = snapshot.ModeClear
	case a.Opts.SkipSnapshots:
		mode = snapshot.ModeSkip
	case a.Opts.Capture:
		mode = snapshot.ModeCapture
	}
	// Zero is a meaningful tolerance (reject any diff); only a negative
	// value means the flag and environment were both silent.
	threshold := a.Opts.Threshold
	if threshold < 0 {
		threshold = snapshot.DefaultThreshold
	}
	return snapshot.New(dir, mode, threshold, a.Log.With(logx.String("comp", "snapshot")))
}

func (a *App) recordRun(ctx context.Context, s report.Summary) {
	if a.History == nil {
		return
	}

	if a.Opts.Debug {
		if prev, err := a.History.RecentRuns(ctx, 1); err == nil && len(prev) == 1 {
			a.Log.Info("previous run",
				logx.Time("started", prev[0].StartedAt),
				logx.Int("passed", prev[0].Passed),
				logx.Int("failed", prev[0].Failed),
				logx.Bool("same_plan", prev[0].PlanDigest == a.lastDigest))
		}
	}

	rec := storage.RunRecord{
		ID:           uuid.NewString(),
		StartedAt:    time.Now().Add(-s.Duration),
		DurationMS:   s.Duration.Milliseconds(),
		PlanDigest:   a.lastDigest,
		SnapshotMode: a.snapshotModeLabel(),
		Total:        len(s.Results),
		Passed:       s.Passed(),
		Failed:       s.Failed(),
		FailuresJSON: failuresJSON(s.Results),
	}
	if err := a.History.AppendRun(ctx, rec); err != nil {
		a.Log.Warn("history append", logx.Err(err))
	}
}

// failuresJSON flattens failed results for the history row; empty when the
// run was clean.
func failuresJSON(results []inspect.Result) string {
	type line struct {
		Test    string `json:"test"`
		Channel string `json:"channel"`
		Detail  string `json:"detail"`
	}
	var lines []line
	for i := range results {
		for _, f := range results[i].Failures {
			lines = append(lines, line{Test: results[i].Name, Channel: f.Channel, Detail: f.Detail})
		}
	}
	if len(lines) == 0 {
		return ""
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return ""
	}
	return string(b)
}

func (a *App) snapshotModeLabel() string {
	switch {
	case a.Opts.ClearSnapshots:
		return "clear"
	case a.Opts.SkipSnapshots:
		return "skip"
	case a.Opts.Capture:
		return "capture"
	default:
		return "compare"
	}
}

func (a *App) out() io.Writer {
	if a.Out != nil {
		return a.Out
	}
	return logx.Stdout()
}
