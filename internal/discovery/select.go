package discovery

// Target is one URL selected for inspection, with the page-level
// expectations carried alongside it.
type Target struct {
	Path        string
	Description string

	ExpectedTitle     string
	ExpectedBodyClass string

	// Admin marks wp-admin surface; the pipeline uses the admin wait
	// discipline for these.
	Admin bool
}

// Selection controls how much of the surface is visited.
type Selection struct {
	// Full visits every post item and every list-page instance. Standard
	// mode picks one representative per post type and per list-page kind.
	Full bool
}

// Select flattens the document into deduplicated inspection targets.
// Missing sections are simply skipped.
func Select(doc *Document, sel Selection) []Target {
	if doc == nil {
		return nil
	}

	var out []Target
	seen := map[string]bool{}
	add := func(t Target) {
		if t.Path == "" || seen[t.Path] {
			return
		}
		seen[t.Path] = true
		out = append(out, t)
	}

	// Common pages first: they carry the richest expectations.
	for _, p := range doc.CommonPages {
		add(Target{
			Path:              p.Path,
			Description:       p.Description,
			ExpectedTitle:     p.ExpectedTitle,
			ExpectedBodyClass: p.ExpectedBodyClass,
		})
	}

	// Post items: one representative per post type unless Full.
	perType := map[string]bool{}
	for _, item := range doc.PostItems {
		if !sel.Full && perType[item.PostType] {
			continue
		}
		perType[item.PostType] = true
		add(Target{Path: item.Path, Description: item.Description})
	}

	// List pages: one representative per kind unless Full.
	perKind := map[string]bool{}
	for _, lp := range doc.ListPages {
		if !sel.Full && perKind[lp.Kind] {
			continue
		}
		perKind[lp.Kind] = true
		add(Target{Path: lp.Path, Description: lp.Description})
	}

	return out
}

// SelectAdmin flattens the admin menu tree into traversal targets. Submenus
// are included only in full mode; the top-level menu is always walked.
func SelectAdmin(doc *Document, sel Selection) []Target {
	if doc == nil {
		return nil
	}

	var out []Target
	seen := map[string]bool{}
	add := func(url, title string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		out = append(out, Target{Path: url, Description: "admin: " + title, Admin: true})
	}

	for _, m := range doc.AdminMenuItems {
		add(m.URL, m.Title)
	}
	if sel.Full {
		for _, sm := range doc.AdminSubmenuItems {
			add(sm.URL, sm.Title)
		}
	}
	return out
}
