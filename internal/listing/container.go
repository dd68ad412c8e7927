package listing

import (
	"context"
	"sync"
	"time"

	"github.com/datumcloud/datum-sync/internal/events"
)

// PageQuery describes one page fetch.
type PageQuery struct {
	// ContainerID is the library or folder id being listed. Empty for
	// search queries.
	ContainerID string

	// Query is the free-text search string, empty for plain listings.
	Query string

	From   int
	Count  int
	Sort   SortType
	Filter FilterType

	// ByFolder asks the server to list the container's own children
	// rather than the library roots.
	ByFolder bool
}

// Fetcher retrieves one page of sections. The gateway-backed
// implementation lives in this package; tests script their own.
type Fetcher interface {
	FetchPage(ctx context.Context, q PageQuery) (*SectionSet, error)
}

// Container is the shared listing capability composed into Library,
// folder sections and search sessions: accumulated pages, the running
// sort/filter, and the reload-identifier guard.
type Container struct {
	id           string
	query        string // search text; exclusive with id
	underLibrary bool   // direct children of a Library get pinned root order
	byFolder     bool

	fetcher  Fetcher
	bus      *events.EventBus
	pageSize int

	mu       sync.Mutex
	pages    []*SectionSet
	sections []Section
	folders  map[string]*Container
	sortType SortType
	filter   FilterType
	reloadID int64
	total    int
	lastReq  time.Time
}

func newContainer(id string, underLibrary, byFolder bool, fetcher Fetcher, bus *events.EventBus, pageSize int) *Container {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Container{
		id:           id,
		underLibrary: underLibrary,
		byFolder:     byFolder,
		fetcher:      fetcher,
		bus:          bus,
		pageSize:     pageSize,
		sortType:     SortNameAsc,
	}
}

// ID returns the container id (library or folder id).
func (c *Container) ID() string {
	return c.id
}

// Reload fetches the first page under a caller-supplied reload id.
// Calling it again with the same id is a no-op: the network fetch runs
// at most once per id. A received from==0 page discards all accumulated
// pages, so a fresh reload can never mix with a previous sort order.
func (c *Container) Reload(ctx context.Context, sortBy SortType, filter FilterType, reloadID int64) (*SectionSet, error) {
	c.mu.Lock()
	if c.reloadID == reloadID {
		c.mu.Unlock()
		return nil, nil
	}
	c.reloadID = reloadID
	c.sortType = sortBy
	c.filter = filter
	q := c.pageQuery(0, sortBy, filter)
	c.mu.Unlock()

	return c.fetch(ctx, q, reloadID)
}

// ReloadNext fetches the next page under a caller-supplied reload id.
// Returns nil once every section is accumulated. The last page's sort
// key is re-used so ordering stays stable across load-more calls even
// if the caller's preference changed mid-scroll.
func (c *Container) ReloadNext(ctx context.Context, filter FilterType, reloadID int64) (*SectionSet, error) {
	c.mu.Lock()
	if c.reloadID == reloadID {
		c.mu.Unlock()
		return nil, nil
	}

	last := c.lastPageLocked()
	if last == nil {
		// Nothing fetched yet; behave like a fresh reload.
		c.reloadID = reloadID
		c.filter = filter
		q := c.pageQuery(0, c.sortType, filter)
		c.mu.Unlock()
		return c.fetch(ctx, q, reloadID)
	}

	next := last.From + last.Count
	if next >= last.TotalCount {
		c.mu.Unlock()
		return nil, nil
	}

	c.reloadID = reloadID
	c.filter = filter
	q := c.pageQuery(next, last.Sorted, filter)
	c.mu.Unlock()

	return c.fetch(ctx, q, reloadID)
}

func (c *Container) pageQuery(from int, sortBy SortType, filter FilterType) PageQuery {
	return PageQuery{
		ContainerID: c.id,
		Query:       c.query,
		From:        from,
		Count:       c.pageSize,
		Sort:        sortBy,
		Filter:      filter,
		ByFolder:    c.byFolder,
	}
}

// fetch runs the page fetch outside the lock and applies the result.
func (c *Container) fetch(ctx context.Context, q PageQuery, reloadID int64) (*SectionSet, error) {
	set, err := c.fetcher.FetchPage(ctx, q)
	if err != nil {
		return nil, err
	}
	set.ReloadID = reloadID

	normalizeSections(set.Sections, set.Sorted, c.underLibrary)

	if !c.applyPage(set, reloadID) {
		// A newer reload superseded this one while it was in flight;
		// its result must not overwrite the newer state.
		return nil, nil
	}
	return set, nil
}

// applyPage merges a completed page. Returns false when the page's
// reload id is no longer current.
func (c *Container) applyPage(set *SectionSet, reloadID int64) bool {
	c.mu.Lock()

	if c.reloadID != reloadID {
		c.mu.Unlock()
		return false
	}

	if set.From == 0 {
		c.pages = c.pages[:0]
		c.sections = c.sections[:0]
	}
	c.pages = append(c.pages, set)
	c.sections = append(c.sections, set.Sections...)
	c.total = set.TotalCount
	c.lastReq = set.RequestTime

	count, total := len(c.sections), c.total
	id := c.id
	bus := c.bus
	c.mu.Unlock()

	if bus != nil {
		bus.Publish(&events.SectionListEvent{
			BaseEvent:   events.BaseEvent{EventType: events.EventSectionList, Time: time.Now()},
			ContainerID: id,
			Count:       count,
			TotalCount:  total,
		})
	}
	return true
}

// lastPageLocked returns the most recently applied page. Caller holds mu.
func (c *Container) lastPageLocked() *SectionSet {
	if len(c.pages) == 0 {
		return nil
	}
	return c.pages[len(c.pages)-1]
}

// SectionSetAt returns the i-th fetched page, or nil.
func (c *Container) SectionSetAt(i int) *SectionSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.pages) {
		return nil
	}
	return c.pages[i]
}

// PageCount returns the number of accumulated pages.
func (c *Container) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Sections returns a copy of the accumulated section list.
func (c *Container) Sections() []Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Section, len(c.sections))
	copy(out, c.sections)
	return out
}

// TotalCount returns the server-reported total for this container.
func (c *Container) TotalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Sort returns the running sort descriptor.
func (c *Container) Sort() SortType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortType
}

// ReloadID returns the last reload identifier the container acted on.
func (c *Container) ReloadID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloadID
}

// RequestTime returns when the last applied page was requested.
func (c *Container) RequestTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReq
}

// FolderOf returns the listing container of a folder section accumulated
// in this container, creating it on first use. Folder containers list
// recursively, independent of their parent's pages, and survive parent
// reloads so sub-listings keep their state.
func (c *Container) FolderOf(sectionID string) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.folders[sectionID]; ok {
		return sub
	}
	for i := range c.sections {
		if c.sections[i].ID == sectionID && c.sections[i].IsFolder() {
			sub := newContainer(sectionID, false, true, c.fetcher, c.bus, c.pageSize)
			if c.folders == nil {
				c.folders = make(map[string]*Container)
			}
			c.folders[sectionID] = sub
			return sub
		}
	}
	return nil
}
