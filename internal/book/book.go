// Package book defines the General Book model: the intermediate
// representation shared by every stage of the narration pipeline.
//
// A GeneralBook is produced once per EPUB by the interpreter and is treated
// as read-only afterwards. Downstream stages derive new artifacts from it and
// never mutate it in place.
package book

// Metadata keys recognized across the pipeline.
const (
	KeyTitle       = "title"
	KeyCreator     = "creator"
	KeyContributor = "contributor"
	KeyLanguage    = "language"
	KeyPublisher   = "publisher"
	KeyIdentifier  = "identifier"
	KeyISBN        = "isbn"
	KeyDate        = "date"
	KeyModified    = "modified"
	KeyDescription = "description"
	KeySubject     = "subject"
	KeyRights      = "rights"
	KeySeries      = "series"
	KeySeriesIndex = "series_index"
	KeyCover       = "cover"
)

// Metadata maps a field name to its values in document order.
// Duplicate fields are kept; First returns the highest priority value.
type Metadata map[string][]string

// First returns the first value recorded for key, or "" if none.
func (m Metadata) First(key string) string {
	for _, v := range m[key] {
		if v != "" {
			return v
		}
	}
	return ""
}

// Add appends a non-empty value for key.
func (m Metadata) Add(key, value string) {
	if value == "" {
		return
	}
	m[key] = append(m[key], value)
}

// Has reports whether key has at least one non-empty value.
func (m Metadata) Has(key string) bool {
	return m.First(key) != ""
}

// ManifestEntry is a single resource declared by the package document.
type ManifestEntry struct {
	ID         string `json:"id"`
	MediaType  string `json:"mediaType"`
	SourcePath string `json:"sourcePath"`
	Properties string `json:"properties,omitempty"`
}

// IsMarkup reports whether the entry holds narratable XHTML/HTML.
func (e ManifestEntry) IsMarkup() bool {
	switch e.MediaType {
	case "application/xhtml+xml", "text/html", "application/xml+xhtml":
		return true
	}
	return false
}

// Role is the structural role of a content unit.
type Role string

const (
	RoleParagraph  Role = "paragraph"
	RoleHeading    Role = "heading"
	RoleListItem   Role = "list-item"
	RoleBlockquote Role = "blockquote"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleParagraph, RoleHeading, RoleListItem, RoleBlockquote:
		return true
	}
	return false
}

// ContentUnit is the atomic unit of narration.
type ContentUnit struct {
	UnitID string `json:"unitId"`
	Text   string `json:"text"`
	Role   Role   `json:"role"`
	// Anchors lists element ids that fall inside this unit. TOC fragments
	// resolve against them.
	Anchors []string `json:"anchors,omitempty"`
}

// GeneralBook is the aggregate produced by the interpreter.
type GeneralBook struct {
	Metadata Metadata        `json:"metadata"`
	Manifest []ManifestEntry `json:"manifest"`
	Spine    []string        `json:"spine"`
	TOC      TOC             `json:"toc"`
	Content  []ContentUnit   `json:"content"`
}

// New returns an empty book ready to be populated.
func New() *GeneralBook {
	return &GeneralBook{
		Metadata: Metadata{},
		Manifest: []ManifestEntry{},
		Spine:    []string{},
		TOC:      *NewTOC(),
		Content:  []ContentUnit{},
	}
}

// ManifestEntry looks up a manifest entry by id.
func (b *GeneralBook) ManifestEntry(id string) (ManifestEntry, bool) {
	for _, e := range b.Manifest {
		if e.ID == id {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// SpineIndex returns the reading-order position of a manifest id.
func (b *GeneralBook) SpineIndex(id string) (int, bool) {
	for i, s := range b.Spine {
		if s == id {
			return i, true
		}
	}
	return -1, false
}

// UnitIndex maps each unitId to its index in Content.
func (b *GeneralBook) UnitIndex() map[string]int {
	idx := make(map[string]int, len(b.Content))
	for i, u := range b.Content {
		idx[u.UnitID] = i
	}
	return idx
}
