package listing

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/datumcloud/datum-sync/internal/apperr"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/jsontree"
)

// GatewayFetcher fetches section pages over the gateway.
type GatewayFetcher struct {
	client *gateway.Client
	token  string // composed auth token for this session
}

// NewGatewayFetcher creates a fetcher bound to one session's auth token.
func NewGatewayFetcher(client *gateway.Client, token string) *GatewayFetcher {
	return &GatewayFetcher{client: client, token: token}
}

// FetchPage requests one /datum/section page and decodes it.
func (f *GatewayFetcher) FetchPage(ctx context.Context, q PageQuery) (*SectionSet, error) {
	params := url.Values{}
	params.Set("from", strconv.Itoa(q.From))
	params.Set("count", strconv.Itoa(q.Count))
	params.Set("sort", string(q.Sort))
	params.Set("filtertype", string(q.Filter))
	params.Set("token", f.token)
	if q.ContainerID != "" {
		params.Set("id", q.ContainerID)
	}
	if q.ByFolder {
		params.Set("byfolder", "1")
	}
	if q.Query != "" {
		params.Set("q", q.Query)
	}

	requestTime := time.Now()
	node, err := f.client.Request(ctx, apperr.ActionSectionList, gateway.PathSection, params)
	if err != nil {
		return nil, err
	}

	return parseSectionSet(node, q, requestTime), nil
}

// parseSectionSet maps a /datum/section response onto a SectionSet. The
// response echoes the effective paging and sort; missing fields fall
// back to what was requested.
func parseSectionSet(node jsontree.Node, q PageQuery, requestTime time.Time) *SectionSet {
	set := &SectionSet{
		Sorted:      SortType(node.Str("sorted", string(q.Sort))),
		TotalCount:  node.Int("totalcount", 0),
		From:        node.Int("from", q.From),
		Count:       node.Int("count", 0),
		RequestTime: requestTime,
	}

	for _, s := range node.Objs("sorts") {
		set.Sorts = append(set.Sorts, SortType(s.Str("sort", "")))
	}

	sections := node.Objs("sections")
	set.Sections = make([]Section, 0, len(sections))
	for _, sn := range sections {
		set.Sections = append(set.Sections, parseSection(sn))
	}
	if set.Count == 0 {
		set.Count = len(set.Sections)
	}
	return set
}

// LibraryInfo names one top-level library of the account.
type LibraryInfo struct {
	ID   string
	Name string
}

// FetchLibraries requests the account's library roster. The server
// returns it on /datum/section when no container id is given.
func (f *GatewayFetcher) FetchLibraries(ctx context.Context) ([]LibraryInfo, error) {
	params := url.Values{}
	params.Set("token", f.token)

	node, err := f.client.Request(ctx, apperr.ActionSectionList, gateway.PathSection, params)
	if err != nil {
		return nil, err
	}

	var libs []LibraryInfo
	for _, ln := range node.Objs("libraries") {
		libs = append(libs, LibraryInfo{
			ID:   ln.Str("id", ""),
			Name: ln.Str("name", ""),
		})
	}
	return libs, nil
}

// SectionInfo is the property sheet of a single section.
type SectionInfo struct {
	ID          string
	Name        string
	Kind        SectionKind
	Size        int64
	CreateTime  int64
	UpdateTime  int64
	ContentType string
	Path        string
	Shared      bool
}

// FetchSectionInfo requests /datum/sectioninfo for one section id.
func (f *GatewayFetcher) FetchSectionInfo(ctx context.Context, id string) (*SectionInfo, error) {
	params := url.Values{}
	params.Set("token", f.token)
	params.Set("id", id)

	node, err := f.client.Request(ctx, apperr.ActionSectionProperty, gateway.PathSectionInfo, params)
	if err != nil {
		return nil, err
	}

	info := &SectionInfo{
		ID:          node.Str("id", id),
		Name:        node.Str("name", ""),
		Kind:        KindFile,
		Size:        node.Int64("size", 0),
		CreateTime:  node.Int64("createtime", 0),
		UpdateTime:  node.Int64("updatetime", 0),
		ContentType: node.Str("contenttype", ""),
		Path:        node.Str("path", ""),
		Shared:      node.Bool("shared", false),
	}
	if node.Bool("isfolder", false) {
		info.Kind = KindFolder
	}
	return info, nil
}

func parseSection(n jsontree.Node) Section {
	s := Section{
		ID:          n.Str("id", ""),
		Name:        n.Str("name", ""),
		Kind:        KindFile,
		RootKind:    RootNone,
		Size:        n.Int64("size", 0),
		UpdateTime:  n.Int64("updatetime", 0),
		ContentType: n.Str("contenttype", ""),
	}
	if n.Bool("isfolder", false) {
		s.Kind = KindFolder
		switch n.Str("rootkind", "") {
		case "recycle":
			s.RootKind = RootRecycle
		case "share":
			s.RootKind = RootShare
		case "upload":
			s.RootKind = RootUpload
		}
	}
	return s
}
