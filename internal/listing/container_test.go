package listing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// scriptedFetcher serves synthetic pages and records every query.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls []PageQuery
	serve func(q PageQuery) (*SectionSet, error)
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, q PageQuery) (*SectionSet, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	return f.serve(q)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// pagedFetcher serves total sections named sec<N>, pageSize at a time.
func pagedFetcher(total int) *scriptedFetcher {
	f := &scriptedFetcher{}
	f.serve = func(q PageQuery) (*SectionSet, error) {
		n := q.Count
		if q.From+n > total {
			n = total - q.From
		}
		sections := make([]Section, 0, n)
		for i := 0; i < n; i++ {
			sections = append(sections, Section{
				ID:   fmt.Sprintf("s%03d", q.From+i),
				Name: fmt.Sprintf("sec%03d", q.From+i),
				Kind: KindFile,
			})
		}
		return &SectionSet{
			Sections:    sections,
			Sorted:      q.Sort,
			TotalCount:  total,
			From:        q.From,
			Count:       n,
			RequestTime: time.Now(),
		}, nil
	}
	return f
}

func TestReloadIdempotentPerID(t *testing.T) {
	f := pagedFetcher(120)
	lib := NewLibrary("lib1", "Files", f, nil, 50)

	set, err := lib.Reload(context.Background(), SortNameAsc, FilterNone, 1)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if set == nil || len(set.Sections) != 50 {
		t.Fatalf("first reload returned %v", set)
	}

	// Same id again: no fetch, no side effects
	set, err = lib.Reload(context.Background(), SortNameAsc, FilterNone, 1)
	if err != nil {
		t.Fatalf("repeat Reload failed: %v", err)
	}
	if set != nil {
		t.Error("repeat reload with same id should return nil")
	}
	if f.callCount() != 1 {
		t.Errorf("fetch ran %d times, want 1", f.callCount())
	}
}

func TestPageAccumulationAndExhaustion(t *testing.T) {
	f := pagedFetcher(120)
	lib := NewLibrary("lib1", "Files", f, nil, 50)

	ctx := context.Background()
	if _, err := lib.Reload(ctx, SortNameAsc, FilterNone, 1); err != nil {
		t.Fatal(err)
	}
	set2, err := lib.ReloadNext(ctx, FilterNone, 2)
	if err != nil {
		t.Fatal(err)
	}
	if set2 == nil || set2.From != 50 || len(set2.Sections) != 50 {
		t.Fatalf("second page = %+v", set2)
	}

	got := lib.Sections()
	if len(got) != 100 {
		t.Fatalf("accumulated %d sections, want 100", len(got))
	}
	// Order is page1 ++ page2
	if got[0].ID != "s000" || got[50].ID != "s050" || got[99].ID != "s099" {
		t.Errorf("accumulation out of order: %s %s %s", got[0].ID, got[50].ID, got[99].ID)
	}

	// Third page is short (20)
	set3, err := lib.ReloadNext(ctx, FilterNone, 3)
	if err != nil {
		t.Fatal(err)
	}
	if set3 == nil || len(set3.Sections) != 20 {
		t.Fatalf("third page = %+v", set3)
	}
	if len(lib.Sections()) != 120 {
		t.Fatalf("accumulated %d sections, want 120", len(lib.Sections()))
	}

	// Everything loaded: no fetch, nil page
	before := f.callCount()
	set4, err := lib.ReloadNext(ctx, FilterNone, 4)
	if err != nil {
		t.Fatal(err)
	}
	if set4 != nil {
		t.Error("ReloadNext past totalCount should return nil")
	}
	if f.callCount() != before {
		t.Error("ReloadNext past totalCount must not fetch")
	}
}

func TestFreshReloadDiscardsAccumulatedPages(t *testing.T) {
	f := pagedFetcher(120)
	lib := NewLibrary("lib1", "Files", f, nil, 50)

	ctx := context.Background()
	if _, err := lib.Reload(ctx, SortNameAsc, FilterNone, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.ReloadNext(ctx, FilterNone, 2); err != nil {
		t.Fatal(err)
	}
	if len(lib.Sections()) != 100 {
		t.Fatalf("accumulated %d, want 100", len(lib.Sections()))
	}

	// Fresh reload under a new sort: prior pages must go
	if _, err := lib.Reload(ctx, SortSizeDesc, FilterNone, 3); err != nil {
		t.Fatal(err)
	}
	if got := len(lib.Sections()); got != 50 {
		t.Errorf("after fresh reload accumulated %d, want 50", got)
	}
	if lib.PageCount() != 1 {
		t.Errorf("after fresh reload pages = %d, want 1", lib.PageCount())
	}
}

func TestReloadNextReusesLastSortKey(t *testing.T) {
	f := pagedFetcher(120)
	lib := NewLibrary("lib1", "Files", f, nil, 50)

	ctx := context.Background()
	if _, err := lib.Reload(ctx, SortUpdateDesc, FilterNone, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.ReloadNext(ctx, FilterNone, 2); err != nil {
		t.Fatal(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(f.calls))
	}
	if f.calls[1].Sort != SortUpdateDesc {
		t.Errorf("load-more sort = %q, want %q", f.calls[1].Sort, SortUpdateDesc)
	}
	if f.calls[1].From != 50 {
		t.Errorf("load-more from = %d, want 50", f.calls[1].From)
	}
}

func TestStaleReloadResultDiscarded(t *testing.T) {
	// Reload A blocks until released; reload B completes first. A's
	// result must not overwrite B's.
	release := make(chan struct{})
	f := &scriptedFetcher{}
	f.serve = func(q PageQuery) (*SectionSet, error) {
		name := "fresh"
		if q.Sort == SortNameAsc { // reload A
			<-release
			name = "stale"
		}
		return &SectionSet{
			Sections:    []Section{{ID: name, Name: name}},
			Sorted:      q.Sort,
			TotalCount:  1,
			From:        0,
			Count:       1,
			RequestTime: time.Now(),
		}, nil
	}
	lib := NewLibrary("lib1", "Files", f, nil, 50)

	done := make(chan struct{})
	go func() {
		defer close(done)
		set, err := lib.Reload(context.Background(), SortNameAsc, FilterNone, 1)
		if err != nil {
			t.Errorf("reload A failed: %v", err)
		}
		if set != nil {
			t.Error("superseded reload A should return nil")
		}
	}()

	// B supersedes A while A is still in flight.
	for lib.ReloadID() != 1 {
		time.Sleep(time.Millisecond)
	}
	if _, err := lib.Reload(context.Background(), SortSizeAsc, FilterNone, 2); err != nil {
		t.Fatal(err)
	}

	close(release)
	<-done

	got := lib.Sections()
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Errorf("sections = %v, want the fresh result only", got)
	}
}

func TestFolderOfListsIndependently(t *testing.T) {
	f := &scriptedFetcher{}
	f.serve = func(q PageQuery) (*SectionSet, error) {
		if q.ByFolder && q.ContainerID == "dir1" {
			return &SectionSet{
				Sections:    []Section{{ID: "child1", Name: "child"}},
				Sorted:      q.Sort,
				TotalCount:  1,
				Count:       1,
				RequestTime: time.Now(),
			}, nil
		}
		return &SectionSet{
			Sections: []Section{
				{ID: "dir1", Name: "docs", Kind: KindFolder, RootKind: RootNone},
			},
			Sorted:      q.Sort,
			TotalCount:  1,
			Count:       1,
			RequestTime: time.Now(),
		}, nil
	}
	lib := NewLibrary("lib1", "Files", f, nil, 50)

	ctx := context.Background()
	if _, err := lib.Reload(ctx, SortNameAsc, FilterNone, 1); err != nil {
		t.Fatal(err)
	}

	folder := lib.FolderOf("dir1")
	if folder == nil {
		t.Fatal("FolderOf(dir1) returned nil")
	}
	if _, err := folder.Reload(ctx, SortNameAsc, FilterNone, 1); err != nil {
		t.Fatal(err)
	}
	if got := folder.Sections(); len(got) != 1 || got[0].ID != "child1" {
		t.Errorf("folder sections = %v", got)
	}

	// Parent still holds its own listing
	if got := lib.Sections(); len(got) != 1 || got[0].ID != "dir1" {
		t.Errorf("library sections = %v", got)
	}

	// Unknown or non-folder ids yield nil
	if lib.FolderOf("nope") != nil {
		t.Error("FolderOf(nope) should be nil")
	}
}
