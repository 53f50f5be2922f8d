// Package provision turns a Provisioning Plan into a live site: it composes
// the ordered step sequence, stages the must-use helper plugin into the
// mount, launches the runtime, and hands back the site handle.
package provision

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crossfit/internal/plan"
	"crossfit/internal/wpruntime"
	logx "crossfit/pkg/logx"
)

//go:embed muplugin/crossfit-helper.php
var muPluginPHP []byte

// MUPluginFilename is the helper's name inside wp-content/mu-plugins/.
const MUPluginFilename = "crossfit-helper.php"

// Provisioner provisions exactly one site per run.
type Provisioner struct {
	Launcher wpruntime.Launcher
	Log      logx.Logger

	// now is swappable for tests; the startup banner embeds it.
	now func() time.Time
}

func New(launcher wpruntime.Launcher, log logx.Logger) *Provisioner {
	return &Provisioner{Launcher: launcher, Log: log, now: time.Now}
}

// Provision stages the mount, composes the blueprint and launches. A launch
// failure aborts the run (unlike resolution failures, which only warn).
func (p *Provisioner) Provision(ctx context.Context, pl *plan.Plan, hostMount string) (*wpruntime.Site, error) {
	if err := p.stageMount(hostMount); err != nil {
		return nil, fmt.Errorf("stage mount: %w", err)
	}

	doc, err := BlueprintJSON(pl, p.bannerTime())
	if err != nil {
		return nil, fmt.Errorf("compose blueprint: %w", err)
	}

	site, err := p.Launcher.Launch(ctx, wpruntime.LaunchSpec{
		WPVersion:  pl.WPVersion,
		PHPVersion: pl.PHPVersion,
		HostMount:  hostMount,
		Blueprint:  doc,
	})
	if err != nil {
		return nil, fmt.Errorf("launch site: %w", err)
	}

	p.Log.Info("site provisioned",
		logx.String("url", site.BaseURL),
		logx.String("wp", pl.WPVersion),
		logx.String("php", pl.PHPVersion),
		logx.Int("plugins", len(pl.Plugins)))
	return site, nil
}

// stageMount creates the directory skeleton and drops the helper plugin in
// so it loads on every request from the first one.
func (p *Provisioner) stageMount(hostMount string) error {
	muDir := filepath.Join(hostMount, filepath.FromSlash(plan.MUPluginsRelPath))
	if err := os.MkdirAll(muDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(muDir, MUPluginFilename), muPluginPHP, 0o644)
}

func (p *Provisioner) bannerTime() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Steps composes the total step order. The first three are fixed for every
// plan: debug constants, compression-test disable, log banner. User
// blueprint steps are appended after all core steps, never before.
func Steps(pl *plan.Plan, bannerAt time.Time) []plan.Step {
	steps := make([]plan.Step, 0, len(pl.ImportFiles)+len(pl.Plugins)+len(pl.ExtraSteps)+6)

	steps = append(steps,
		plan.DefineConstsStep(pl.DebugConsts),
		plan.SetSiteOptionsStep(map[string]any{"wp_can_compress_scripts": "0"}),
		plan.RunPHPStep(bannerPHP(bannerAt)),
	)

	for _, f := range pl.ImportFiles {
		steps = append(steps, plan.ImportFileStep(f))
	}
	if pl.Theme != nil {
		steps = append(steps, plan.InstallThemeStep(*pl.Theme))
	}
	for _, pr := range pl.Plugins {
		steps = append(steps, plan.InstallPluginStep(pr))
	}

	if opts := remainingSiteOptions(pl); len(opts) > 0 {
		steps = append(steps, plan.SetSiteOptionsStep(opts))
	}

	steps = append(steps, pl.ExtraSteps...)

	// Force a first write of the discovery document so test generation has
	// something to read even before any admin request lands.
	steps = append(steps, plan.RunPHPStep(refreshDiscoveryPHP))

	return steps
}

// remainingSiteOptions: everything except the compression flag, which has
// its own fixed early step.
func remainingSiteOptions(pl *plan.Plan) map[string]any {
	out := make(map[string]any, len(pl.SiteOptions))
	for k, v := range pl.SiteOptions {
		if k == "wp_can_compress_scripts" {
			continue
		}
		out[k] = v
	}
	return out
}

// BlueprintJSON serialises the composed steps in the runtime's blueprint
// dialect.
func BlueprintJSON(pl *plan.Plan, bannerAt time.Time) ([]byte, error) {
	doc := map[string]any{
		"preferredVersions": map[string]string{
			"wp":  pl.WPVersion,
			"php": pl.PHPVersion,
		},
		"features": map[string]any{"networking": true},
		"login":    true,
		"steps":    Steps(pl, bannerAt),
	}
	return json.MarshalIndent(doc, "", "  ")
}

func bannerPHP(at time.Time) string {
	return fmt.Sprintf(
		`<?php error_log('crossfit: run started %s');`,
		at.UTC().Format(time.RFC3339),
	)
}

// refreshDiscoveryPHP asks the helper plugin for a fresh discovery write.
const refreshDiscoveryPHP = `<?php require_once '/wordpress/wp-load.php'; if (function_exists('crossfit_write_discovery')) { crossfit_write_discovery(); }`
