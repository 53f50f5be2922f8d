// Package discovery reads the document the running site writes to announce
// its testable surface. The helper plugin rewrites the file on every admin
// request; readers always take whole-file snapshots and tolerate catching a
// rewrite mid-flight.
package discovery

// Document is the discovery wire format. Every field is optional; consumers
// degrade gracefully when a section is missing.
type Document struct {
	PostTypes         []PostType    `json:"postTypes"`
	PostItems         []PostItem    `json:"postItems"`
	ListPages         []ListPage    `json:"listPages"`
	CommonPages       []CommonPage  `json:"commonPages"`
	AdminMenuItems    []AdminMenu   `json:"adminMenuItems"`
	AdminSubmenuItems []AdminSubmenu `json:"adminSubmenuItems"`
}

type PostType struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

type PostItem struct {
	PostType    string `json:"postType"`
	Path        string `json:"path"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
}

// ListPage kinds.
const (
	KindCategory   = "category"
	KindTag        = "tag"
	KindAuthor     = "author"
	KindDateArch   = "date-archive"
	KindCPTArchive = "custom-post-type-archive"
	KindSearch     = "search"
)

type ListPage struct {
	Path        string `json:"path"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

type CommonPage struct {
	Path              string `json:"path"`
	Description       string `json:"description"`
	ExpectedTitle     string `json:"expectedTitle,omitempty"`
	ExpectedBodyClass string `json:"expectedBodyClass,omitempty"`
}

type AdminMenu struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type AdminSubmenu struct {
	Parent string `json:"parent"`
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}
