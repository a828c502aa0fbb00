package epub

// OPF is a parsed Open Package Format document.
type OPF struct {
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string
	Spine         []SpineItem
}

// Metadata is the subset of OPF metadata carried into the manuscript.
type Metadata struct {
	Title      string
	Creators   []Creator
	Language   string
	Identifier string
	Rights     string
}

// Author returns the first creator with the "aut" role, or the first
// creator when no role is given.
func (m Metadata) Author() string {
	for _, c := range m.Creators {
		if c.Role == "aut" {
			return c.Name
		}
	}
	for _, c := range m.Creators {
		if c.Role == "" {
			return c.Name
		}
	}
	return ""
}

// Creator is a dc:creator entry.
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
}

// ManifestItem is an item in the manifest. Href is resolved against the
// OPF directory.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem is an itemref in the spine.
type SpineItem struct {
	IDRef  string
	Linear bool
}
