// Package harness turns a reconstructed site plus its discovery document
// into a test suite and executes it on a small worker pool, one browser
// tab per worker.
package harness

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"crossfit/internal/browser"
	"crossfit/internal/inspect"
	logx "crossfit/pkg/logx"
)

// Test is one schedulable unit. Serial tests mutate site state and run
// alone after the parallel phase, in declaration order.
type Test struct {
	Name   string
	Serial bool
	// Timeout overrides the runner default for slow pages.
	Timeout time.Duration

	Run func(ctx context.Context, page browser.Page) inspect.Result
}

// Options tune the pool.
type Options struct {
	Workers int
	Timeout time.Duration
}

const defaultTestTimeout = 30 * time.Second

// DefaultWorkers is 3 locally and 2 on CI, where runners are smaller.
func DefaultWorkers() int {
	if os.Getenv("CI") != "" {
		return 2
	}
	return 3
}

// Runner executes a suite against one browser.
type Runner struct {
	Browser browser.Browser
	Log     logx.Logger
	Opts    Options
}

// Run executes the parallel tests on the pool, then the serial tests one
// by one on a fresh tab. Results come back sorted by test name so runs
// are comparable. A panicking test is converted into a failed result; it
// never takes a worker down.
func (r *Runner) Run(ctx context.Context, tests []Test) []inspect.Result {
	workers := r.Opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	var parallel, serial []Test
	for _, t := range tests {
		if t.Serial {
			serial = append(serial, t)
		} else {
			parallel = append(parallel, t)
		}
	}

	results := make([]inspect.Result, 0, len(tests))
	var mu sync.Mutex

	queue := make(chan Test, len(parallel))
	for _, t := range parallel {
		queue <- t
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			r.worker(ctx, idx, queue, func(res inspect.Result) {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	// Serial lane: state-mutating tests cannot overlap anything.
	if len(serial) > 0 {
		r.worker(ctx, workers, sliceToChan(serial), func(res inspect.Result) {
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func sliceToChan(tests []Test) chan Test {
	ch := make(chan Test, len(tests))
	for _, t := range tests {
		ch <- t
	}
	close(ch)
	return ch
}

// worker drains the queue on a single tab. The tab is created lazily so a
// driver failure surfaces as per-test failures rather than a silent hang.
func (r *Runner) worker(ctx context.Context, idx int, queue <-chan Test, emit func(inspect.Result)) {
	page, err := r.Browser.NewPage(ctx)
	if err != nil {
		for t := range queue {
			res := inspect.Result{Name: t.Name}
			res.Failures = append(res.Failures, inspect.Failure{
				Channel: "worker", Detail: fmt.Sprintf("open tab: %v", err),
			})
			emit(res)
		}
		return
	}
	defer func() { _ = page.Close(context.WithoutCancel(ctx)) }()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-queue:
			if !ok {
				return
			}
			start := time.Now()
			res := r.execOne(ctx, page, t)
			res.Duration = time.Since(start)
			r.logResult(idx, t, res)
			emit(res)
		}
	}
}

func (r *Runner) execOne(ctx context.Context, page browser.Page, t Test) (res inspect.Result) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = r.Opts.Timeout
	}
	if timeout <= 0 {
		timeout = defaultTestTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Panic guard: one broken test must not kill the worker or the run.
	defer func() {
		if rec := recover(); rec != nil {
			r.Log.Error("test panicked",
				logx.String("test", t.Name),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())))
			res = inspect.Result{Name: t.Name}
			res.Failures = append(res.Failures, inspect.Failure{
				Channel: "panic", Detail: fmt.Sprintf("%v", rec),
			})
		}
	}()

	res = t.Run(runCtx, page)
	if res.Name == "" {
		res.Name = t.Name
	}
	return res
}

func (r *Runner) logResult(idx int, t Test, res inspect.Result) {
	fields := []logx.Field{
		logx.String("test", t.Name),
		logx.Int("worker", idx),
		logx.Duration("dur", res.Duration),
	}
	if res.OK() {
		r.Log.Debug("test passed", fields...)
		return
	}
	for _, f := range res.Failures {
		fields = append(fields, logx.String(f.Channel, f.Detail))
	}
	r.Log.Warn("test failed", fields...)
}
