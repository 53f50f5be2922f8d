// Package report renders the end-of-run summary and maps the run outcome
// onto the process exit code.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"crossfit/internal/inspect"
	"crossfit/internal/snapshot"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1 // one or more page inspections failed
	ExitSetup  = 2 // the site never came up or the suite could not start
	ExitUsage  = 3 // bad flags or environment
)

// Summary is the aggregate over one run.
type Summary struct {
	Results  []inspect.Result
	Duration time.Duration
}

// Passed counts results with no failures.
func (s Summary) Passed() int {
	n := 0
	for i := range s.Results {
		if s.Results[i].OK() {
			n++
		}
	}
	return n
}

// Failed counts results with at least one failure.
func (s Summary) Failed() int { return len(s.Results) - s.Passed() }

// ExitCode maps the summary onto the process exit code.
func (s Summary) ExitCode() int {
	if s.Failed() > 0 {
		return ExitFailed
	}
	return ExitOK
}

// Printer renders summaries. Color is resolved once at construction so CI
// logs stay clean.
type Printer struct {
	Out     io.Writer
	pass    *color.Color
	fail    *color.Color
	dim     *color.Color
	heading *color.Color
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		Out:     out,
		pass:    color.New(color.FgGreen),
		fail:    color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
		heading: color.New(color.Bold),
	}
}

// Print writes the per-test lines followed by the totals.
func (p *Printer) Print(s Summary) {
	p.heading.Fprintln(p.Out, "test results")

	for i := range s.Results {
		res := &s.Results[i]
		if res.OK() {
			p.pass.Fprintf(p.Out, "  ok   %s", res.Name)
			p.printVisual(res)
			p.dim.Fprintf(p.Out, "  (%s)\n", res.Duration.Round(time.Millisecond))
			continue
		}
		p.fail.Fprintf(p.Out, "  FAIL %s", res.Name)
		p.dim.Fprintf(p.Out, "  (%s)\n", res.Duration.Round(time.Millisecond))
		for _, f := range res.Failures {
			fmt.Fprintf(p.Out, "       %s: %s\n", f.Channel, f.Detail)
		}
	}

	fmt.Fprintln(p.Out)
	totals := fmt.Sprintf("%d passed, %d failed, %d total in %s",
		s.Passed(), s.Failed(), len(s.Results), s.Duration.Round(time.Millisecond))
	if s.Failed() > 0 {
		p.fail.Fprintln(p.Out, totals)
	} else {
		p.pass.Fprintln(p.Out, totals)
	}
}

func (p *Printer) printVisual(res *inspect.Result) {
	switch res.Visual.Status {
	case snapshot.StatusCaptured:
		p.dim.Fprintf(p.Out, " [baseline captured]")
	case snapshot.StatusMissingBaseline:
		p.dim.Fprintf(p.Out, " [no baseline]")
	case snapshot.StatusOK:
		if res.Visual.DiffRatio > 0 {
			p.dim.Fprintf(p.Out, " [diff %.3f]", res.Visual.DiffRatio)
		}
	}
}

// PrintDebugLog renders the tail of the site's PHP debug log, if the file
// exists and is non-empty. WordPress rewrites the log in place, so the
// read is a whole-file snapshot.
func (p *Printer) PrintDebugLog(path string, lines int) {
	tail, err := TailFile(path, lines)
	if err != nil || len(tail) == 0 {
		return
	}
	fmt.Fprintln(p.Out)
	p.heading.Fprintf(p.Out, "debug.log (last %d lines)\n", len(tail))
	for _, line := range tail {
		p.dim.Fprintf(p.Out, "  %s\n", line)
	}
}

// TailFile returns up to n trailing non-empty lines of a file. A missing
// file is not an error to the caller beyond the nil slice.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		n = 20
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	all := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(all))
	for _, l := range all {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
