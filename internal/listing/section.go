// Package listing implements the hierarchical, incrementally-fetched
// view of the remote file tree: libraries, sections, fetched pages and
// search sessions.
package listing

import (
	"time"
)

// SectionKind distinguishes file and folder sections.
type SectionKind int

const (
	KindFile SectionKind = iota
	KindFolder
)

// RootKind marks the distinguished folder kinds that are pinned to a
// fixed relative order when listed directly under a library.
type RootKind int

const (
	RootNone RootKind = iota + 1 // ordinary section
	RootRecycle
	RootShare
	RootUpload
)

// rootRank gives the pinned precedence: recycle < share < upload <
// ordinary.
func (r RootKind) rootRank() int {
	switch r {
	case RootRecycle:
		return 0
	case RootShare:
		return 1
	case RootUpload:
		return 2
	default:
		return 3
	}
}

// Section is one file or folder node.
type Section struct {
	ID          string
	Name        string
	Kind        SectionKind
	RootKind    RootKind
	Size        int64
	UpdateTime  int64
	ContentType string
}

// IsFolder reports whether the section is a folder.
func (s *Section) IsFolder() bool {
	return s.Kind == KindFolder
}

// SectionSet is one fetched page of sections plus its pagination and
// sort metadata.
type SectionSet struct {
	Sections    []Section
	Sorts       []SortType // sort descriptors the server offers
	Sorted      SortType   // the one this page is ordered by
	TotalCount  int
	From        int
	Count       int
	RequestTime time.Time
	ReloadID    int64
}
