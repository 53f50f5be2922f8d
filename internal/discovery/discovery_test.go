package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossfit/internal/config"
	logx "crossfit/pkg/logx"
)

func sampleDoc() *Document {
	return &Document{
		PostTypes: []PostType{{Slug: "post", Label: "Posts"}, {Slug: "page", Label: "Pages"}},
		PostItems: []PostItem{
			{PostType: "post", Path: "/hello-world/", Description: "post: Hello"},
			{PostType: "post", Path: "/second-post/", Description: "post: Second"},
			{PostType: "page", Path: "/sample-page/", Description: "page: Sample"},
		},
		ListPages: []ListPage{
			{Path: "/category/uncategorized/", Kind: KindCategory, Description: "category"},
			{Path: "/category/news/", Kind: KindCategory, Description: "category"},
			{Path: "/?s=test", Kind: KindSearch, Description: "search"},
		},
		CommonPages: []CommonPage{
			{Path: "/", Description: "homepage", ExpectedBodyClass: "home"},
			{Path: "/hello-world/", Description: "duplicate of a post item"},
		},
		AdminMenuItems: []AdminMenu{
			{Slug: "index.php", Title: "Dashboard", URL: "/wp-admin/index.php"},
			{Slug: "edit.php", Title: "Posts", URL: "/wp-admin/edit.php"},
		},
		AdminSubmenuItems: []AdminSubmenu{
			{Parent: "edit.php", Slug: "post-new.php", Title: "Add New", URL: "/wp-admin/post-new.php"},
		},
	}
}

func paths(ts []Target) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Path
	}
	return out
}

func TestSelectStandardMode(t *testing.T) {
	t.Parallel()

	got := Select(sampleDoc(), Selection{})

	// One representative per post type, one per list kind, deduped against
	// common pages.
	assert.Equal(t, []string{
		"/",
		"/hello-world/",
		"/sample-page/",
		"/category/uncategorized/",
		"/?s=test",
	}, paths(got))

	// Expectations ride along.
	assert.Equal(t, "home", got[0].ExpectedBodyClass)
}

func TestSelectFullMode(t *testing.T) {
	t.Parallel()

	got := Select(sampleDoc(), Selection{Full: true})
	assert.Contains(t, paths(got), "/second-post/")
	assert.Contains(t, paths(got), "/category/news/")
}

func TestSelectMissingSections(t *testing.T) {
	t.Parallel()

	got := Select(&Document{CommonPages: []CommonPage{{Path: "/", Description: "home"}}}, Selection{})
	assert.Equal(t, []string{"/"}, paths(got))

	assert.Nil(t, Select(nil, Selection{}))
}

func TestSelectAdmin(t *testing.T) {
	t.Parallel()

	std := SelectAdmin(sampleDoc(), Selection{})
	assert.Equal(t, []string{"/wp-admin/index.php", "/wp-admin/edit.php"}, paths(std))
	for _, target := range std {
		assert.True(t, target.Admin)
	}

	full := SelectAdmin(sampleDoc(), Selection{Full: true})
	assert.Contains(t, paths(full), "/wp-admin/post-new.php")
}

func TestReadWholeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "crossfit-discovery.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"postTypes":[{"slug":"post","label":"Posts"}]}`), 0o644))

	doc, err := Read(path, logx.Nop())
	require.NoError(t, err)
	require.Len(t, doc.PostTypes, 1)
	assert.Equal(t, "post", doc.PostTypes[0].Slug)
}

func TestReadTornFileEventuallyFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "crossfit-discovery.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"postTypes":[{"slug":`), 0o644))

	_, err := Read(path, logx.Nop())
	require.Error(t, err)
}

func TestLocateOrder(t *testing.T) {
	explicit, err := Locate("/explicit/doc.json", "/mount")
	require.NoError(t, err)
	assert.Equal(t, "/explicit/doc.json", explicit)

	t.Setenv(config.EnvDiscoveryPath, "/from/env.json")
	fromEnv, err := Locate("", "/mount")
	require.NoError(t, err)
	assert.Equal(t, "/from/env.json", fromEnv)

	t.Setenv(config.EnvDiscoveryPath, "")
	sidecar, err := Locate("", "/mount")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/mount", "wp-content", "crossfit-discovery.json"), sidecar)

	_, err = Locate("", "")
	require.Error(t, err)
}
