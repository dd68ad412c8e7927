package listing

import (
	"sync"

	"github.com/datumcloud/datum-sync/internal/events"
)

// SearchSession is a virtual folder-like listing scoped to a query
// string. It reuses the Container reload machinery; the query travels
// in place of a container id.
type SearchSession struct {
	*Container
	Query string
}

// SearchList is a capacity-bounded registry of search sessions keyed by
// query text. When the bound is exceeded the session whose last page
// request is oldest is evicted. Owned by the Session, so it dies with
// it; there is no process-wide state.
type SearchList struct {
	fetcher  Fetcher
	bus      *events.EventBus
	pageSize int
	capacity int

	mu       sync.Mutex
	sessions map[string]*SearchSession
}

// NewSearchList creates a registry bounded to capacity sessions.
func NewSearchList(fetcher Fetcher, bus *events.EventBus, pageSize, capacity int) *SearchList {
	if capacity < 1 {
		capacity = 1
	}
	return &SearchList{
		fetcher:  fetcher,
		bus:      bus,
		pageSize: pageSize,
		capacity: capacity,
		sessions: make(map[string]*SearchSession),
	}
}

// Session returns the search session for a query, creating it on first
// use and evicting the least-recently-requested session when the bound
// is exceeded.
func (l *SearchList) Session(query string) *SearchSession {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.sessions[query]; ok {
		return s
	}

	if len(l.sessions) >= l.capacity {
		l.evictOldestLocked()
	}

	c := newContainer("", false, false, l.fetcher, l.bus, l.pageSize)
	c.query = query
	s := &SearchSession{Container: c, Query: query}
	l.sessions[query] = s
	return s
}

// evictOldestLocked drops the session with the oldest last request.
// Sessions that never fetched sort oldest. Caller holds mu.
func (l *SearchList) evictOldestLocked() {
	var oldestKey string
	first := true
	for key, s := range l.sessions {
		if first || s.RequestTime().Before(l.sessions[oldestKey].RequestTime()) {
			oldestKey = key
			first = false
		}
	}
	if !first {
		delete(l.sessions, oldestKey)
	}
}

// Len returns the number of retained sessions.
func (l *SearchList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Has reports whether a session for query is retained.
func (l *SearchList) Has(query string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sessions[query]
	return ok
}
