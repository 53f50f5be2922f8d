// Package plan defines the Provisioning Plan: the canonical, resolved
// description of everything needed to bring an empty WordPress site to a
// ready-to-test state.
//
// A Plan is built once per run (internal/config) and is immutable afterwards;
// internal/provision turns it into an ordered step sequence.
package plan

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

const (
	// DefaultWPVersion is used when neither flags, Site-Health nor a
	// blueprint pin a WordPress version.
	DefaultWPVersion = "latest"

	// DefaultPHPVersion mirrors the runtime's current stable default.
	DefaultPHPVersion = "8.3"

	// Registry is the upstream download host for slug@version references.
	Registry = "https://downloads.wordpress.org"
)

// SiteRoot is the site-side path the host working directory is bound to.
const SiteRoot = "/wordpress"

// Well-known paths inside the mounted site root.
const (
	DebugLogRelPath  = "wp-content/debug.log"
	DiscoveryRelPath = "wp-content/crossfit-discovery.json"
	MUPluginsRelPath = "wp-content/mu-plugins"

	// UploadsDirName is where local theme/plugin/import files are copied so
	// the site can see them through the mount.
	UploadsDirName = "uploads-crossfit"
)

// ResourceKind says how a theme/plugin/import reference is addressed.
type ResourceKind int

const (
	// KindSlug references the upstream registry, optionally pinned.
	KindSlug ResourceKind = iota
	// KindURL is a remote archive passed through unchanged.
	KindURL
	// KindPath is a file already copied under the mount (VFS reference).
	KindPath
)

func (k ResourceKind) String() string {
	switch k {
	case KindSlug:
		return "slug"
	case KindURL:
		return "url"
	case KindPath:
		return "path"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Resource is one theme, plugin or content-import reference in the plan.
type Resource struct {
	Kind    ResourceKind
	Slug    string
	Version string // only meaningful for KindSlug
	URL     string // only meaningful for KindURL
	Path    string // post-mount path, only meaningful for KindPath
}

// Pinned reports whether the resource carries an explicit version.
func (r Resource) Pinned() bool { return r.Kind == KindSlug && r.Version != "" }

// Unpin drops the version pin, if any.
func (r Resource) Unpin() Resource {
	r.Version = ""
	return r
}

// DownloadURL resolves a pinned slug to its direct upstream archive.
// kind must be "theme" or "plugin". Unpinned slugs, URLs and paths do not
// have a synthesised download URL.
func (r Resource) DownloadURL(kind string) (string, bool) {
	if !r.Pinned() {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s.%s.zip", Registry, kind, r.Slug, r.Version), true
}

func (r Resource) String() string {
	switch r.Kind {
	case KindSlug:
		if r.Version != "" {
			return r.Slug + "@" + r.Version
		}
		return r.Slug
	case KindURL:
		return r.URL
	case KindPath:
		return r.Path
	default:
		return ""
	}
}

// Ref renders the resource as a blueprint resource-reference object.
// kind must be "theme" or "plugin" ("file" for imports uses RefFile).
func (r Resource) Ref(kind string) map[string]any {
	if u, ok := r.DownloadURL(kind); ok {
		return map[string]any{"resource": "url", "url": u}
	}
	switch r.Kind {
	case KindSlug:
		return map[string]any{"resource": "wordpress.org/" + kind + "s", "slug": r.Slug}
	case KindURL:
		return map[string]any{"resource": "url", "url": r.URL}
	case KindPath:
		return map[string]any{"resource": "vfs", "path": r.Path}
	default:
		return nil
	}
}

// Step is one provisioning step in the runtime's blueprint dialect. Core
// steps are built by the constructors below; user blueprint steps arrive as
// raw JSON and round-trip through Raw untouched.
type Step struct {
	Name string         `json:"step"`
	Args map[string]any `json:"-"`

	// Raw holds the original JSON of a user-supplied step. When set it wins
	// over Name/Args on encode so unknown fields survive the round trip.
	Raw json.RawMessage `json:"-"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	obj := make(map[string]any, len(s.Args)+1)
	for k, v := range s.Args {
		obj[k] = v
	}
	obj["step"] = s.Name
	return json.Marshal(obj)
}

func (s *Step) UnmarshalJSON(b []byte) error {
	var probe struct {
		Step string `json:"step"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	if probe.Step == "" {
		return fmt.Errorf("blueprint step missing %q field", "step")
	}
	s.Name = probe.Step
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Step constructors. Names follow the runtime's blueprint vocabulary.

func DefineConstsStep(consts map[string]any) Step {
	return Step{Name: "defineWpConfigConsts", Args: map[string]any{"consts": consts}}
}

func SetSiteOptionsStep(options map[string]any) Step {
	return Step{Name: "setSiteOptions", Args: map[string]any{"options": options}}
}

func RunPHPStep(code string) Step {
	return Step{Name: "runPHP", Args: map[string]any{"code": code}}
}

func InstallThemeStep(r Resource) Step {
	return Step{Name: "installTheme", Args: map[string]any{
		"themeData": r.Ref("theme"),
		"options":   map[string]any{"activate": true},
	}}
}

func InstallPluginStep(r Resource) Step {
	return Step{Name: "installPlugin", Args: map[string]any{
		"pluginData": r.Ref("plugin"),
		"options":    map[string]any{"activate": true},
	}}
}

func ImportFileStep(r Resource) Step {
	ref := map[string]any{"resource": "vfs", "path": r.Path}
	if r.Kind == KindURL {
		ref = map[string]any{"resource": "url", "url": r.URL}
	}
	return Step{Name: "importWxr", Args: map[string]any{"file": ref}}
}

// Plan is the canonical pre-launch descriptor. See the package doc.
type Plan struct {
	WPVersion  string
	PHPVersion string

	Theme       *Resource
	Plugins     []Resource
	ImportFiles []Resource

	// SiteOptions are applied after install (permalinks, comment defaults, ...).
	SiteOptions map[string]any

	// DebugConsts is always populated; the log path constant always points
	// inside the mounted directory.
	DebugConsts map[string]any

	// ExtraSteps come from a user blueprint and are appended after all core
	// steps, never before.
	ExtraSteps []Step

	UpgradeAll bool
}

// New returns a Plan carrying the built-in defaults: latest WordPress,
// PHP 8.3, debug mode on with the log redirected into the mount, network
// auto-updates off, and the compression test disabled.
func New(mountDir string) *Plan {
	return &Plan{
		WPVersion:   DefaultWPVersion,
		PHPVersion:  DefaultPHPVersion,
		SiteOptions: map[string]any{},
		DebugConsts: DebugConsts(mountDir),
	}
}

// DebugConsts builds the fixed debug constant set for a given mount.
func DebugConsts(mountDir string) map[string]any {
	return map[string]any{
		"WP_DEBUG":                   true,
		"WP_DEBUG_LOG":               DebugLogPath(mountDir),
		"WP_DEBUG_DISPLAY":           true,
		"AUTOMATIC_UPDATER_DISABLED": true,
		"DISALLOW_FILE_MODS":         true,
		"WP_AUTO_UPDATE_CORE":        false,
	}
}

// DebugLogPath is the absolute post-mount path of the PHP error log.
func DebugLogPath(mountDir string) string {
	return path.Join("/", strings.Trim(mountDir, "/"), DebugLogRelPath)
}

// StripPins removes every version pin (theme, plugins, wp, php). Used by
// --upgrade-all.
func (p *Plan) StripPins() {
	p.WPVersion = DefaultWPVersion
	p.PHPVersion = "latest"
	if p.Theme != nil {
		t := p.Theme.Unpin()
		p.Theme = &t
	}
	for i, r := range p.Plugins {
		p.Plugins[i] = r.Unpin()
	}
}

// Digest is a short stable fingerprint of the plan, used to correlate run
// history rows. It hashes the user-visible inputs only.
func (p *Plan) Digest() string {
	var b strings.Builder
	b.WriteString("wp=" + p.WPVersion + ";php=" + p.PHPVersion)
	if p.Theme != nil {
		b.WriteString(";theme=" + p.Theme.String())
	}
	for _, r := range p.Plugins {
		b.WriteString(";plugin=" + r.String())
	}
	for _, r := range p.ImportFiles {
		b.WriteString(";import=" + r.String())
	}
	return fmt.Sprintf("%x", fnv64(b.String()))
}

func fnv64(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}
