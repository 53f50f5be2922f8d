package config

import (
	"os"
	"strconv"
	"strings"
)

// Options is the flattened flag/env surface of a run, before resolution.
// Flags win; each field falls back to the environment variable named in the
// struct tag comment when the flag is unset.
type Options struct {
	Blueprint  string   // WP_BLUEPRINT: blueprint path or URL
	Imports    []string // WP_IMPORT: content-import files
	Theme      string   // WP_THEME: slug[@version] | path | url
	Plugins    []string // WP_PLUGINS: comma-separated specs
	WPVersion  string   // WP_WP_VERSION
	SiteHealth string   // WP_SITE_HEALTH: path of the report dump
	UpgradeAll bool     // WP_UPGRADE_ALL

	FullMode bool // FULL_MODE: exhaustive discovery traversal
	Debug    bool // DEBUG: verbose diagnostics

	Capture        bool    // CAPTURE: write/refresh snapshot baselines
	ClearSnapshots bool    // delete snapshot store, then skip
	SkipSnapshots  bool    // SKIP_SNAPSHOTS: no visual diff
	Threshold      float64 // SCREENSHOT_THRESHOLD: diff tolerance in [0,1]; negative means unset

	DebugLogLines int // WP_DEBUG_LOG_LINES: tail length printed on teardown

	Schedule string // re-run cadence for watch mode (cron or interval)
}

// Environment variables exported by setup for workers to find the site.
const (
	EnvSiteURL      = "WP_PLAYGROUND_URL"
	EnvSiteDebugLog = "WP_PLAYGROUND_DEBUG_LOG"

	// EnvDiscoveryPath announces the discovery document location to test
	// generation when the mount layout is non-standard.
	EnvDiscoveryPath = "WP_DISCOVERY_PATH"
)

// FromEnv fills every zero field from its environment fallback.
func (o *Options) FromEnv() {
	fillStr(&o.Blueprint, "WP_BLUEPRINT")
	fillList(&o.Imports, "WP_IMPORT")
	fillStr(&o.Theme, "WP_THEME")
	fillList(&o.Plugins, "WP_PLUGINS")
	fillStr(&o.WPVersion, "WP_WP_VERSION")
	if o.WPVersion == "" {
		// Historic alias.
		fillStr(&o.WPVersion, "WP_WPVERSION")
	}
	fillStr(&o.SiteHealth, "WP_SITE_HEALTH")
	fillBool(&o.UpgradeAll, "WP_UPGRADE_ALL")
	fillBool(&o.FullMode, "FULL_MODE")
	fillBool(&o.Debug, "DEBUG")
	fillBool(&o.Capture, "CAPTURE")
	fillBool(&o.SkipSnapshots, "SKIP_SNAPSHOTS")
	if o.Threshold < 0 {
		if v, ok := os.LookupEnv("SCREENSHOT_THRESHOLD"); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				o.Threshold = f
			}
		}
	}
	if o.DebugLogLines == 0 {
		if v, ok := os.LookupEnv("WP_DEBUG_LOG_LINES"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				o.DebugLogLines = n
			}
		}
	}
}

func fillStr(dst *string, key string) {
	if *dst != "" {
		return
	}
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func fillList(dst *[]string, key string) {
	if len(*dst) != 0 {
		return
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			*dst = append(*dst, p)
		}
	}
}

func fillBool(dst *bool, key string) {
	if *dst {
		return
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	}
}
