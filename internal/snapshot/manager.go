// Package snapshot maintains the platform-keyed store of reference
// screenshots and performs the thresholded pixel comparison.
package snapshot

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"runtime"

	logx "crossfit/pkg/logx"
)

// Mode selects the store behaviour for a run.
type Mode int

const (
	// ModeCompare diffs against the stored baseline; a missing baseline is
	// a silent pass.
	ModeCompare Mode = iota
	// ModeCapture writes (or overwrites) baselines and always passes.
	ModeCapture
	// ModeSkip disables the visual channel.
	ModeSkip
	// ModeClear deletes the store up front, then behaves as skip.
	ModeClear
)

func (m Mode) String() string {
	switch m {
	case ModeCompare:
		return "compare"
	case ModeCapture:
		return "capture"
	case ModeSkip:
		return "skip"
	case ModeClear:
		return "clear"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Status values of a visual-diff outcome.
type Status string

const (
	StatusOK              Status = "ok"
	StatusMissingBaseline Status = "missing-baseline"
	StatusCaptured        Status = "captured"
	StatusFailed          Status = "failed"
	StatusSkipped         Status = "skipped"
)

// Outcome is the visual-diff result for one logical name.
type Outcome struct {
	Status    Status
	DiffRatio float64
	Err       error
}

// Failed reports whether the outcome should fail the test.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// DefaultThreshold permits 2% of pixels to differ; dynamic content (dates,
// nonces, rotating dashboards) makes pixel-perfect comparison a non-goal.
const DefaultThreshold = 0.02

// Manager owns the snapshot store for one run.
type Manager struct {
	Dir       string
	Mode      Mode
	Threshold float64

	// Exclude lists logical names whose pages are known non-deterministic
	// (timestamps, random ids) and are never compared.
	Exclude map[string]bool

	platform string
	log      logx.Logger
}

// DefaultExclusions are admin screens whose bodies embed timestamps or
// random identifiers.
func DefaultExclusions() map[string]bool {
	return map[string]bool{
		"admin-theme-install": true,
		"admin-site-health":   true,
	}
}

// New validates the threshold (out-of-range values are warned about and
// replaced with the default) and, in clear mode, empties the store.
func New(dir string, mode Mode, threshold float64, log logx.Logger) (*Manager, error) {
	if threshold < 0 || threshold > 1 {
		log.Warn("screenshot threshold out of range [0,1]; using default",
			logx.Float64("given", threshold), logx.Float64("default", DefaultThreshold))
		threshold = DefaultThreshold
	}

	m := &Manager{
		Dir:       dir,
		Mode:      mode,
		Threshold: threshold,
		Exclude:   DefaultExclusions(),
		platform:  PlatformTag(),
		log:       log,
	}

	if mode == ModeClear {
		if err := m.Clear(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PlatformTag maps GOOS onto the store's platform key space. Fonts and
// antialiasing differ per OS, so baselines never cross platforms.
func PlatformTag() string {
	switch runtime.GOOS {
	case "darwin":
		return "darwin"
	case "windows":
		return "win32"
	default:
		return "linux"
	}
}

// Path is the baseline location for a logical name on this platform.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.Dir, fmt.Sprintf("%s-%s.png", name, m.platform))
}

// Excluded reports whether a logical name is on the non-deterministic list.
func (m *Manager) Excluded(name string) bool { return m.Exclude[name] }

// Clear deletes the whole store. The manager then behaves as skip.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.Dir); err != nil {
		return fmt.Errorf("clear snapshot store: %w", err)
	}
	return nil
}

// Process applies the run mode to one freshly rendered screenshot.
func (m *Manager) Process(name string, current []byte) Outcome {
	if m.Mode == ModeSkip || m.Mode == ModeClear || m.Excluded(name) {
		return Outcome{Status: StatusSkipped}
	}

	path := m.Path(name)

	switch m.Mode {
	case ModeCapture:
		if err := os.MkdirAll(m.Dir, 0o755); err != nil {
			return Outcome{Status: StatusFailed, Err: err}
		}
		if err := os.WriteFile(path, current, 0o644); err != nil {
			return Outcome{Status: StatusFailed, Err: err}
		}
		m.log.Debug("baseline captured", logx.String("name", name), logx.String("path", path))
		return Outcome{Status: StatusCaptured}

	default: // ModeCompare
		baseline, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			// No baseline yet: pass silently; capture mode seeds it.
			return Outcome{Status: StatusMissingBaseline}
		}
		if err != nil {
			return Outcome{Status: StatusFailed, Err: fmt.Errorf("read baseline: %w", err)}
		}

		ratio, err := DiffRatio(baseline, current)
		if err != nil {
			return Outcome{Status: StatusFailed, Err: err}
		}
		if ratio > m.Threshold {
			return Outcome{
				Status:    StatusFailed,
				DiffRatio: ratio,
				Err:       fmt.Errorf("pixel diff %.4f exceeds threshold %.4f", ratio, m.Threshold),
			}
		}
		return Outcome{Status: StatusOK, DiffRatio: ratio}
	}
}

// DiffRatio decodes two PNGs and returns the fraction of differing pixels
// over the union of their bounds. Differently sized images count the
// non-overlapping region as fully different.
func DiffRatio(baselinePNG, currentPNG []byte) (float64, error) {
	a, err := png.Decode(bytes.NewReader(baselinePNG))
	if err != nil {
		return 0, fmt.Errorf("decode baseline: %w", err)
	}
	b, err := png.Decode(bytes.NewReader(currentPNG))
	if err != nil {
		return 0, fmt.Errorf("decode screenshot: %w", err)
	}

	ab, bb := a.Bounds(), b.Bounds()
	w := maxInt(ab.Dx(), bb.Dx())
	h := maxInt(ab.Dy(), bb.Dy())
	if w == 0 || h == 0 {
		return 0, nil
	}

	diff := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			inA := x < ab.Dx() && y < ab.Dy()
			inB := x < bb.Dx() && y < bb.Dy()
			if !inA || !inB {
				diff++
				continue
			}
			ar, ag, abl, aa := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, ba := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if ar != br || ag != bg || abl != bbl || aa != ba {
				diff++
			}
		}
	}
	return float64(diff) / float64(w*h), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
