// Package wpruntime is the boundary to the WordPress runtime that actually
// hosts the disposable site. The runtime itself (Playground-style VM,
// container, whatever) is an external collaborator; this package defines the
// handle the harness needs and a process-spawning launcher for runtimes that
// speak "print the URL on stdout".
package wpruntime

import (
	"context"
	"errors"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"crossfit/internal/plan"
	logx "crossfit/pkg/logx"
)

// LaunchSpec is everything a launcher needs before install runs: versions,
// the host directory to bind to the site root, and the composed blueprint
// document (the provisioning steps, serialised).
type LaunchSpec struct {
	WPVersion  string
	PHPVersion string

	// HostMount is bound to plan.SiteRoot before installation so the debug
	// log and discovery document are visible to the harness.
	HostMount string

	// Blueprint is the full step sequence as blueprint JSON.
	Blueprint []byte
}

// Launcher starts a site. Implementations are expected to be expensive;
// the harness launches exactly once per run.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (*Site, error)
}

// Site is the live-site handle: where it is, where its PHP error log lands
// on the host, and how to stop it.
type Site struct {
	BaseURL      string
	HostMount    string
	DebugLogPath string

	stopOnce sync.Once
	stopErr  error
	stopFn   func(ctx context.Context) error

	Log logx.Logger
}

// NewSite wires a handle. baseURL is normalised (see NormalizeBaseURL).
func NewSite(baseURL, hostMount string, stop func(ctx context.Context) error, log logx.Logger) *Site {
	return &Site{
		BaseURL:      NormalizeBaseURL(baseURL),
		HostMount:    hostMount,
		DebugLogPath: filepath.Join(hostMount, filepath.FromSlash(plan.DebugLogRelPath)),
		stopFn:       stop,
		Log:          log,
	}
}

// Stop tears the site down. Idempotent, and tolerates a runtime that
// already died: the first error is remembered, later calls return it.
func (s *Site) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.stopFn == nil {
			return
		}
		if err := s.stopFn(ctx); err != nil && !IsExpectedTeardownError(err) {
			s.stopErr = err
		}
	})
	return s.stopErr
}

// URL joins a site-relative path onto the base URL.
func (s *Site) URL(path string) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if path == "" {
		return base + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// NormalizeBaseURL rewrites a localhost host to the loopback address.
// Browsers treat http://localhost:N and http://127.0.0.1:N as different
// origins; pinning one form avoids cross-origin confusion when the driver
// resolves the other.
func NormalizeBaseURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	host := u.Hostname()
	if !strings.EqualFold(host, "localhost") {
		return strings.TrimRight(u.String(), "/")
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("127.0.0.1", port)
	} else {
		u.Host = "127.0.0.1"
	}
	return strings.TrimRight(u.String(), "/")
}

// IsExpectedTeardownError reports whether an error is connection-churn of
// the kind the runtime emits while tests are still draining during
// teardown. These are demoted to debug level instead of failing the run.
func IsExpectedTeardownError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"connection reset",
		"broken pipe",
		"econnreset",
		"epipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// ClassifyRuntimeError routes a runtime-emitted error to the right log
// level. Call it from the error-emitter subscription.
func ClassifyRuntimeError(log logx.Logger, err error) {
	if err == nil {
		return
	}
	if IsExpectedTeardownError(err) {
		log.Debug("runtime connection churn (expected during teardown)", logx.Err(err))
		return
	}
	log.Error("runtime error", logx.Err(err))
}
