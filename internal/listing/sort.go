package listing

import (
	"sort"
	"strings"
)

// SortType is a server sort descriptor, key and direction.
type SortType string

const (
	SortNameAsc    SortType = "name.asc"
	SortNameDesc   SortType = "name.desc"
	SortUpdateAsc  SortType = "update.asc"
	SortUpdateDesc SortType = "update.desc"
	SortSizeAsc    SortType = "size.asc"
	SortSizeDesc   SortType = "size.desc"
	SortTypeAsc    SortType = "type.asc"
	SortTypeDesc   SortType = "type.desc"
)

// FilterType narrows a listing to one media class.
type FilterType string

const (
	FilterNone  FilterType = ""
	FilterImage FilterType = "image/"
	FilterAudio FilterType = "audio/"
	FilterVideo FilterType = "video/"
)

// key returns the sort field name, defaulting to name.
func (s SortType) key() string {
	if i := strings.IndexByte(string(s), '.'); i > 0 {
		return string(s)[:i]
	}
	return "name"
}

// ascending reports the sort direction, defaulting to ascending.
func (s SortType) ascending() bool {
	return !strings.HasSuffix(string(s), ".desc")
}

// normalizeSections re-sorts a received page. The server returns pages
// already ordered by the requested key, but the distinguished root
// folders must keep a fixed relative order within a library level, and
// folders always come before files.
//
// underLibrary marks sections listed directly under a Library (not a
// sub-folder); only there does the pinned root-kind precedence apply.
// Ties are left unordered.
func normalizeSections(sections []Section, by SortType, underLibrary bool) {
	key := by.key()
	asc := by.ascending()

	sort.Slice(sections, func(i, j int) bool {
		a, b := &sections[i], &sections[j]

		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}

		if underLibrary && a.IsFolder() && b.IsFolder() {
			ra, rb := a.RootKind.rootRank(), b.RootKind.rootRank()
			if ra != rb {
				return ra < rb
			}
		}

		var less, equal bool
		switch key {
		case "update":
			less, equal = a.UpdateTime < b.UpdateTime, a.UpdateTime == b.UpdateTime
		case "size":
			less, equal = a.Size < b.Size, a.Size == b.Size
		case "type":
			ta, tb := strings.ToLower(a.ContentType), strings.ToLower(b.ContentType)
			less, equal = ta < tb, ta == tb
		default: // name
			na, nb := strings.ToLower(a.Name), strings.ToLower(b.Name)
			less, equal = na < nb, na == nb
		}
		if equal {
			return false
		}
		if asc {
			return less
		}
		return !less
	})
}
