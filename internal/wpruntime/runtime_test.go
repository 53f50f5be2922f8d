package wpruntime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "crossfit/pkg/logx"
)

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"http://localhost:8891", "http://127.0.0.1:8891"},
		{"http://localhost:8891/", "http://127.0.0.1:8891"},
		{"http://LOCALHOST:8891", "http://127.0.0.1:8891"},
		{"http://localhost", "http://127.0.0.1"},
		{"http://127.0.0.1:9400", "http://127.0.0.1:9400"},
		{"https://site.example.com", "https://site.example.com"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeBaseURL(tt.in), "input %q", tt.in)
	}
}

func TestSiteURLJoining(t *testing.T) {
	t.Parallel()

	s := NewSite("http://localhost:8891", t.TempDir(), nil, logx.Nop())
	assert.Equal(t, "http://127.0.0.1:8891/", s.URL(""))
	assert.Equal(t, "http://127.0.0.1:8891/wp-admin/", s.URL("/wp-admin/"))
	assert.Equal(t, "http://127.0.0.1:8891/feed/", s.URL("feed/"))
}

func TestSiteDebugLogPath(t *testing.T) {
	t.Parallel()

	mount := t.TempDir()
	s := NewSite("http://127.0.0.1:1", mount, nil, logx.Nop())
	assert.Contains(t, s.DebugLogPath, mount)
	assert.Contains(t, s.DebugLogPath, "debug.log")
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	s := NewSite("http://127.0.0.1:1", t.TempDir(), func(ctx context.Context) error {
		calls++
		return errors.New("runtime crashed earlier")
	}, logx.Nop())

	err1 := s.Stop(context.Background())
	err2 := s.Stop(context.Background())
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 1, calls)
}

func TestStopSwallowsExpectedTeardownErrors(t *testing.T) {
	t.Parallel()

	s := NewSite("http://127.0.0.1:1", t.TempDir(), func(ctx context.Context) error {
		return errors.New("read tcp 127.0.0.1: connection reset by peer")
	}, logx.Nop())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestIsExpectedTeardownError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsExpectedTeardownError(errors.New("write: broken pipe")))
	assert.True(t, IsExpectedTeardownError(errors.New("ECONNRESET")))
	assert.True(t, IsExpectedTeardownError(context.Canceled))
	assert.False(t, IsExpectedTeardownError(errors.New("php fatal error")))
	assert.False(t, IsExpectedTeardownError(nil))
}
