package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"crossfit/internal/plan"
	"crossfit/internal/sitehealth"
	"crossfit/internal/slugs"
	logx "crossfit/pkg/logx"
)

// Resolver merges the heterogeneous input bundle (blueprint, Site-Health
// report, per-option overrides, built-in defaults) into one Provisioning
// Plan. Precedence, highest first: explicit overrides > Site-Health >
// blueprint > built-ins.
//
// Bad inputs degrade instead of aborting: a missing local file or an
// unparseable blueprint is warned about and elided. The one exception is an
// explicit override, which is kept even when it looks wrong; observing that
// failure is presumably why the user passed it.
type Resolver struct {
	Opts Options

	// HostMount is the host-side working directory that will be bound to
	// the site root. Local files are copied under it so the site can see
	// them.
	HostMount string

	Slugs *slugs.Client
	HTTP  *http.Client
	Log   logx.Logger
}

// Resolve builds the plan. It is pure given the same inputs and the same
// network responses, and the returned plan is not mutated afterwards.
// Resolution never aborts a run; unusable inputs are warned about and
// elided.
func (r *Resolver) Resolve(ctx context.Context) *plan.Plan {
	p := plan.New(plan.SiteRoot)

	// Lowest precedence first; later layers overwrite.
	r.applyBlueprint(p)
	r.applySiteHealth(ctx, p)
	r.applyOverrides(p)

	// The compression test phones home on every page; always off.
	p.SiteOptions["wp_can_compress_scripts"] = "0"

	if r.Opts.UpgradeAll {
		p.UpgradeAll = true
		p.StripPins()
	}
	return p
}

func (r *Resolver) applyBlueprint(p *plan.Plan) {
	if r.Opts.Blueprint == "" {
		return
	}
	bp, err := LoadBlueprint(r.Opts.Blueprint, r.HTTP)
	if err != nil {
		r.Log.Warn("blueprint unusable; continuing without it",
			logx.String("blueprint", r.Opts.Blueprint), logx.Err(err))
		return
	}
	if v := strings.TrimSpace(bp.PreferredVersions.WP); v != "" {
		p.WPVersion = v
	}
	if v := strings.TrimSpace(bp.PreferredVersions.PHP); v != "" {
		p.PHPVersion = v
	}
	p.ExtraSteps = bp.Steps
}

func (r *Resolver) applySiteHealth(ctx context.Context, p *plan.Plan) {
	if r.Opts.SiteHealth == "" {
		return
	}
	report, err := sitehealth.ParseFile(r.Opts.SiteHealth, r.Log)
	if err != nil {
		r.Log.Warn("site-health report unusable; continuing without it",
			logx.String("path", r.Opts.SiteHealth), logx.Err(err))
		return
	}

	if report.WPVersion != "" {
		p.WPVersion = report.WPVersion
	}
	if report.PHPVersion != "" {
		p.PHPVersion = report.PHPVersion
	}
	if report.Theme.Slug != "" {
		p.Theme = &plan.Resource{Kind: plan.KindSlug, Slug: report.Theme.Slug, Version: report.Theme.Version}
	}

	if len(report.Plugins) > 0 {
		resolved := r.Slugs.Resolve(ctx, report.Plugins)
		for _, pl := range report.Plugins {
			slug, ok := resolved[pl.DisplayName]
			if !ok {
				continue // already warned by the slug client
			}
			p.Plugins = append(p.Plugins, plan.Resource{Kind: plan.KindSlug, Slug: slug, Version: pl.Version})
		}
	}

	for k, v := range report.Options {
		p.SiteOptions[k] = v
	}
}

func (r *Resolver) applyOverrides(p *plan.Plan) {
	if v := strings.TrimSpace(r.Opts.WPVersion); v != "" {
		p.WPVersion = v
	}

	if spec := strings.TrimSpace(r.Opts.Theme); spec != "" {
		if res, ok := r.resolveSpec(spec, "theme"); ok {
			p.Theme = &res
		}
	}

	if len(r.Opts.Plugins) > 0 {
		// Overrides replace, not extend, whatever Site-Health derived.
		p.Plugins = nil
		for _, spec := range r.Opts.Plugins {
			if res, ok := r.resolveSpec(spec, "plugin"); ok {
				p.Plugins = append(p.Plugins, res)
			}
		}
	}

	for _, spec := range r.Opts.Imports {
		if res, ok := r.resolveSpec(spec, "import"); ok {
			p.ImportFiles = append(p.ImportFiles, res)
		}
	}
}

// resolveSpec turns one CLI spec (slug[@version] | URL | local path) into a
// plan resource. Local files are copied under the mount with a
// collision-proof name. A spec that cannot be used is warned about and
// dropped (elided from the plan).
func (r *Resolver) resolveSpec(spec, kind string) (plan.Resource, bool) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return plan.Resource{}, false

	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return plan.Resource{Kind: plan.KindURL, URL: spec}, true

	case looksLikePath(spec):
		mounted, err := r.copyIntoMount(spec)
		if err != nil {
			r.Log.Warn("local file unusable; spec dropped",
				logx.String("kind", kind), logx.String("spec", spec), logx.Err(err))
			return plan.Resource{}, false
		}
		return plan.Resource{Kind: plan.KindPath, Path: mounted}, true

	default:
		slug, version := splitSlugVersion(spec)
		if slug == "" {
			r.Log.Warn("empty slug; spec dropped", logx.String("kind", kind), logx.String("spec", spec))
			return plan.Resource{}, false
		}
		return plan.Resource{Kind: plan.KindSlug, Slug: slug, Version: version}, true
	}
}

// looksLikePath: anything with a path separator, a leading dot, or an
// existing file of that name. A bare "akismet" stays a slug even if a file
// called akismet exists somewhere else on disk.
func looksLikePath(spec string) bool {
	if strings.ContainsAny(spec, `/\`) || strings.HasPrefix(spec, ".") {
		return true
	}
	if st, err := os.Stat(spec); err == nil && !st.IsDir() {
		return filepath.Ext(spec) != ""
	}
	return false
}

func splitSlugVersion(spec string) (slug, version string) {
	if i := strings.LastIndex(spec, "@"); i >= 0 {
		return strings.TrimSpace(spec[:i]), strings.TrimSpace(spec[i+1:])
	}
	return spec, ""
}

// copyIntoMount validates a local file and copies it under
// <mount>/uploads-crossfit/ with a timestamp+uuid suffix so parallel runs
// and duplicate basenames cannot collide. Returns the post-mount path.
func (r *Resolver) copyIntoMount(src string) (string, error) {
	st, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dir := filepath.Join(r.HostMount, plan.UploadsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ext := filepath.Ext(src)
	base := strings.TrimSuffix(filepath.Base(src), ext)
	name := fmt.Sprintf("%s-%d-%s%s", base, time.Now().UnixMilli(), uuid.NewString()[:8], ext)

	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	return path.Join(plan.SiteRoot, plan.UploadsDirName, name), nil
}
