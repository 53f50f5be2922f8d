package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfit/internal/plan"
	"crossfit/internal/wpruntime"
	logx "crossfit/pkg/logx"
)

type fakeLauncher struct {
	spec wpruntime.LaunchSpec
}

func (f *fakeLauncher) Launch(ctx context.Context, spec wpruntime.LaunchSpec) (*wpruntime.Site, error) {
	f.spec = spec
	return wpruntime.NewSite("http://localhost:8891", spec.HostMount, nil, logx.Nop()), nil
}

func fullPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p := plan.New(plan.SiteRoot)
	theme := plan.Resource{Kind: plan.KindSlug, Slug: "twentytwentyone", Version: "2.7"}
	p.Theme = &theme
	p.Plugins = []plan.Resource{
		{Kind: plan.KindSlug, Slug: "akismet", Version: "5.6"},
		{Kind: plan.KindURL, URL: "https://example.com/custom.zip"},
	}
	p.ImportFiles = []plan.Resource{{Kind: plan.KindPath, Path: "/wordpress/uploads-crossfit/content.xml"}}
	p.SiteOptions["permalink_structure"] = "/%postname%/"
	p.ExtraSteps = []plan.Step{{Name: "login", Raw: json.RawMessage(`{"step":"login","username":"admin"}`)}}
	return p
}

func stepNames(steps []plan.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func TestStepsFixedPrefix(t *testing.T) {
	t.Parallel()

	// The first three steps are invariant across every plan shape.
	for _, p := range []*plan.Plan{plan.New(plan.SiteRoot), fullPlan(t)} {
		names := stepNames(Steps(p, time.Unix(0, 0)))
		require.GreaterOrEqual(t, len(names), 3)
		assert.Equal(t, []string{"defineWpConfigConsts", "setSiteOptions", "runPHP"}, names[:3])
	}
}

func TestStepsTotalOrder(t *testing.T) {
	t.Parallel()

	names := stepNames(Steps(fullPlan(t), time.Unix(0, 0)))
	assert.Equal(t, []string{
		"defineWpConfigConsts",
		"setSiteOptions",
		"runPHP",
		"importWxr",
		"installTheme",
		"installPlugin",
		"installPlugin",
		"setSiteOptions",
		"login",
		"runPHP",
	}, names)
}

func TestUserStepsNeverPrecedeDebugEnable(t *testing.T) {
	t.Parallel()

	p := plan.New(plan.SiteRoot)
	p.ExtraSteps = []plan.Step{{Name: "mkdir", Raw: json.RawMessage(`{"step":"mkdir","path":"/x"}`)}}
	names := stepNames(Steps(p, time.Unix(0, 0)))

	debugIdx, userIdx := -1, -1
	for i, n := range names {
		if n == "defineWpConfigConsts" && debugIdx < 0 {
			debugIdx = i
		}
		if n == "mkdir" {
			userIdx = i
		}
	}
	require.NotEqual(t, -1, debugIdx)
	require.NotEqual(t, -1, userIdx)
	assert.Less(t, debugIdx, userIdx)
}

func TestBlueprintJSONShape(t *testing.T) {
	t.Parallel()

	doc, err := BlueprintJSON(fullPlan(t), time.Unix(0, 0))
	require.NoError(t, err)

	var decoded struct {
		PreferredVersions map[string]string `json:"preferredVersions"`
		Steps             []map[string]any  `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(doc, &decoded))
	assert.Equal(t, "latest", decoded.PreferredVersions["wp"])
	assert.Equal(t, "8.3", decoded.PreferredVersions["php"])

	// Debug constants survive serialisation with the mount-absolute log path.
	first := decoded.Steps[0]
	consts, ok := first["consts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/wordpress/wp-content/debug.log", consts["WP_DEBUG_LOG"])

	// The user step kept its unknown fields.
	var login map[string]any
	for _, s := range decoded.Steps {
		if s["step"] == "login" {
			login = s
		}
	}
	require.NotNil(t, login)
	assert.Equal(t, "admin", login["username"])
}

func TestProvisionStagesHelperPlugin(t *testing.T) {
	t.Parallel()

	mount := t.TempDir()
	fl := &fakeLauncher{}
	p := New(fl, logx.Nop())

	site, err := p.Provision(context.Background(), plan.New(plan.SiteRoot), mount)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8891", site.BaseURL)

	helper := filepath.Join(mount, "wp-content", "mu-plugins", MUPluginFilename)
	b, err := os.ReadFile(helper)
	require.NoError(t, err)
	assert.Contains(t, string(b), "crossfit_write_discovery")

	// The launcher saw the composed blueprint.
	assert.Contains(t, string(fl.spec.Blueprint), "defineWpConfigConsts")
}
