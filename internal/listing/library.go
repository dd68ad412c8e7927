package listing

import (
	"github.com/datumcloud/datum-sync/internal/events"
)

// Library is a top-level remote listing container, the root of one
// folder tree. It composes the same Container capability folder
// sections use; its direct children get the pinned root-kind ordering.
type Library struct {
	*Container
	Name string
}

// NewLibrary creates a library listing rooted at id.
func NewLibrary(id, name string, fetcher Fetcher, bus *events.EventBus, pageSize int) *Library {
	return &Library{
		Container: newContainer(id, true, false, fetcher, bus, pageSize),
		Name:      name,
	}
}
