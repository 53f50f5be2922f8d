package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"crossfit/internal/config"
	"crossfit/internal/discovery"
	logx "crossfit/pkg/logx"
)

// Watch re-runs the suite on a schedule until the context ends. The
// schedule is either a cron expression ("*/30 * * * *") or a plain Go
// duration ("45m"). Runs never overlap; a tick that lands mid-run is
// dropped.
func (a *App) Watch(ctx context.Context, schedule string) error {
	spec := strings.TrimSpace(schedule)
	if spec == "" {
		return fmt.Errorf("empty schedule")
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d < time.Minute {
			return fmt.Errorf("schedule %s is shorter than a minute", d)
		}
		spec = "@every " + d.String()
	}

	running := make(chan struct{}, 1)
	runOnce := func() {
		select {
		case running <- struct{}{}:
		default:
			a.Log.Warn("previous run still in progress; skipping tick")
			return
		}
		defer func() { <-running }()

		summary, code := a.RunOnce(ctx)
		a.Log.Info("watch run finished",
			logx.Int("passed", summary.Passed()),
			logx.Int("failed", summary.Failed()),
			logx.Int("exit", code))
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{a.Log})))
	if _, err := c.AddFunc(spec, runOnce); err != nil {
		return fmt.Errorf("bad schedule %q: %w", schedule, err)
	}

	// Against an attached site, a rewrite of the discovery document means
	// the testable surface changed; rerun without waiting for the tick.
	if path := os.Getenv(config.EnvDiscoveryPath); path != "" {
		go func() {
			err := discovery.Watch(ctx, path, a.Log.With(logx.String("comp", "discovery")),
				func(*discovery.Document) { runOnce() })
			if err != nil {
				a.Log.Warn("discovery watch unavailable", logx.Err(err))
			}
		}()
	}

	// First run happens immediately; the schedule covers repeats.
	runOnce()

	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	return ctx.Err()
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		fields = append(fields, logx.Any(key, kv[i+1]))
	}
	return fields
}
