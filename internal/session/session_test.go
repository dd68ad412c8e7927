package session

import (
	"testing"
	"time"

	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/listing"
	"github.com/datumcloud/datum-sync/internal/models"
)

func newTestSession(userKey string) *Session {
	cred := models.Credential{UserKey: userKey, Token: "tok", Email: userKey + "@example.com"}
	host := models.HostRecord{ClusterID: "c1", HostKey: "h1"}
	return New(cred, host, nil, nil, 50, 4)
}

func TestTokenComposition(t *testing.T) {
	s := newTestSession("u1")
	if s.Token() != "h1"+"u1"+"tok" {
		t.Errorf("token = %q", s.Token())
	}
}

func TestSnapshotGettersReturnCopies(t *testing.T) {
	s := newTestSession("u1")

	s.SetHeartbeat(&models.HeartbeatSnapshot{UserUpdateTime: 5})
	hb := s.Heartbeat()
	hb.UserUpdateTime = 99

	if got := s.Heartbeat().UserUpdateTime; got != 5 {
		t.Errorf("stored heartbeat mutated through the copy: %d", got)
	}

	s.SetDashboard(&models.DashboardSnapshot{
		Items: []models.DashboardItem{{ID: "d1"}},
	})
	d := s.Dashboard()
	d.Items[0].ID = "mutated"

	if got := s.Dashboard().Items[0].ID; got != "d1" {
		t.Errorf("stored dashboard mutated through the copy: %q", got)
	}
}

func TestLibraryLookup(t *testing.T) {
	s := newTestSession("u1")
	s.SetLibraries([]*listing.Library{
		listing.NewLibrary("lib1", "Files", nil, nil, 50),
		listing.NewLibrary("lib2", "Photos", nil, nil, 50),
	})

	if lib := s.Library("lib2"); lib == nil || lib.Name != "Photos" {
		t.Errorf("Library(lib2) = %+v", lib)
	}
	if lib := s.Library("nope"); lib != nil {
		t.Errorf("Library(nope) = %+v", lib)
	}
}

func TestManagerSetAndClear(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	changed := bus.Subscribe(events.EventSessionChanged)

	m := NewManager(bus)
	a := newTestSession("u1")
	b := newTestSession("u2")

	m.Set(a)
	if !m.IsCurrent(a) || m.IsCurrent(b) {
		t.Error("a should be current")
	}

	select {
	case ev := <-changed:
		sc, ok := ev.(*events.SessionChangedEvent)
		if !ok || sc.UserKey != "u1" {
			t.Errorf("session-changed event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no session-changed event")
	}

	// Clearing a stale session is a no-op.
	m.Clear(b)
	if m.Current() != a {
		t.Error("clearing a non-current session must not clear the current one")
	}

	m.Clear(a)
	if m.Current() != nil {
		t.Error("current session should be nil after Clear")
	}
}

func TestReplacingSessionInvalidatesOld(t *testing.T) {
	m := NewManager(nil)
	a := newTestSession("u1")
	b := newTestSession("u2")

	m.Set(a)
	m.Set(b)

	if m.IsCurrent(a) {
		t.Error("replaced session still reported current")
	}
	if !m.IsCurrent(b) {
		t.Error("replacement session not current")
	}
}
