package wpruntime

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	logx "crossfit/pkg/logx"
)

// ProcessLauncher runs a runtime server as a child process. It covers any
// runtime whose CLI accepts a mount flag and a blueprint file and announces
// its URL on stdout, e.g.:
//
//	npx @wp-playground/cli server --mount-before-install <dir>:/wordpress --blueprint <file>
type ProcessLauncher struct {
	// Command is the argv template. Placeholders:
	//   {mount}      host mount directory
	//   {siteRoot}   site-side root path
	//   {blueprint}  path of the serialised blueprint JSON
	//   {wp}         WordPress version
	//   {php}        PHP version
	Command []string

	// StartupTimeout bounds the wait for the URL announcement.
	StartupTimeout time.Duration

	Log logx.Logger
}

var reAnnouncedURL = regexp.MustCompile(`https?://[^\s"']+`)

// Launch writes the blueprint to disk, starts the child, and waits for it
// to announce a URL. The child's stderr is streamed through the runtime
// error classifier for the life of the site.
func (l *ProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) (*Site, error) {
	if len(l.Command) == 0 {
		return nil, fmt.Errorf("wpruntime: no runtime command configured")
	}

	bpPath := spec.HostMount + string(os.PathSeparator) + "blueprint.crossfit.json"
	if err := os.WriteFile(bpPath, spec.Blueprint, 0o644); err != nil {
		return nil, fmt.Errorf("write blueprint: %w", err)
	}

	argv := make([]string, 0, len(l.Command))
	for _, a := range l.Command {
		a = strings.ReplaceAll(a, "{mount}", spec.HostMount)
		a = strings.ReplaceAll(a, "{siteRoot}", "/wordpress")
		a = strings.ReplaceAll(a, "{blueprint}", bpPath)
		a = strings.ReplaceAll(a, "{wp}", spec.WPVersion)
		a = strings.ReplaceAll(a, "{php}", spec.PHPVersion)
		argv = append(argv, a)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runtime %q: %w", argv[0], err)
	}

	l.Log.Info("runtime starting", logx.String("cmd", strings.Join(argv, " ")))

	// Stream stderr through the classifier for the process lifetime.
	go func() {
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			ClassifyRuntimeError(l.Log, fmt.Errorf("%s", line))
		}
	}()

	urlCh := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		announced := false
		for sc.Scan() {
			line := sc.Text()
			l.Log.Debug("runtime", logx.String("out", line))
			if announced {
				continue
			}
			if m := reAnnouncedURL.FindString(line); m != "" {
				announced = true
				select {
				case urlCh <- m:
				default:
				}
			}
		}
	}()

	timeout := l.StartupTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var baseURL string
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return nil, ctx.Err()
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("runtime did not announce a URL within %s", timeout)
	case baseURL = <-urlCh:
	}

	stop := func(stopCtx context.Context) error {
		if cmd.Process == nil {
			return nil
		}
		// Polite first; the runtime flushes its VM state on SIGTERM.
		_ = cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-stopCtx.Done():
			_ = cmd.Process.Kill()
			return stopCtx.Err()
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
			return fmt.Errorf("runtime ignored SIGTERM; killed")
		case err := <-done:
			var exitErr *exec.ExitError
			if err != nil && !isBenignExit(err, &exitErr) {
				return err
			}
			return nil
		}
	}

	site := NewSite(baseURL, spec.HostMount, stop, l.Log)
	l.Log.Info("site ready",
		logx.String("url", site.BaseURL),
		logx.String("debug_log", site.DebugLogPath))
	return site, nil
}

// isBenignExit: SIGTERM-driven exits are the teardown we asked for.
func isBenignExit(err error, exitErr **exec.ExitError) bool {
	if IsExpectedTeardownError(err) {
		return true
	}
	if ee, ok := err.(*exec.ExitError); ok {
		*exitErr = ee
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ws.Signal() == syscall.SIGTERM || ws.Signal() == syscall.SIGKILL
		}
	}
	return false
}
