package scheduler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datumcloud/datum-sync/internal/config"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/logging"
	"github.com/datumcloud/datum-sync/internal/models"
	"github.com/datumcloud/datum-sync/internal/session"
	"github.com/datumcloud/datum-sync/internal/store"
)

func testClient(t *testing.T, srv *httptest.Server) *gateway.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.EntryAddr = u.Hostname()
	cfg.EntryPort = port

	client, err := gateway.NewClient(cfg, logging.NewLogger("daemon"))
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func testSession(client *gateway.Client, bus *events.EventBus) *session.Session {
	cred := models.Credential{UserKey: "u1", Token: "tok", Email: "one@example.com"}
	host := models.HostRecord{ClusterID: "c1", HostKey: "h1"}
	return session.New(cred, host, client, bus, 50, 4)
}

// waitJob drains the stopped-event channel until kind appears.
func waitJob(t *testing.T, ch <-chan events.Event, kind string, timeout time.Duration) *events.JobEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if je, ok := ev.(*events.JobEvent); ok && je.Kind == kind {
				return je
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return nil
		}
	}
}

func TestHeartbeatRunsAndDriftTriggersAccountInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/user/heartbeat" && r.URL.Query().Get("action") == "access":
			fmt.Fprint(w, `{"userupdatetime": 7, "invitecount": 1}`)
		case r.URL.Path == "/user/heartbeat" && r.URL.Query().Get("action") == "info":
			fmt.Fprint(w, `{"email": "one@example.com", "nickname": "One", "userupdatetime": 7, "invitecount": 1}`)
		case r.URL.Path == "/user/space":
			fmt.Fprint(w, `{"used": 10, "total": 100}`)
		case r.URL.Path == "/user/profile":
			fmt.Fprint(w, `{"nickname": "One Display", "avatar": "a1.png"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	bus := events.NewEventBus(0)
	defer bus.Close()
	stopped := bus.Subscribe(events.EventJobStopped)

	client := testClient(t, srv)
	s := testSession(client, bus)
	mgr := session.NewManager(bus)
	mgr.Set(s)

	sched := New(client, store.NewMemoryStore(), mgr, bus, nil, logging.NewLogger("daemon"), Options{
		ShortDelay:       time.Hour,
		LongDelay:        time.Hour,
		AccountInfoDelay: time.Millisecond,
	})
	defer sched.Stop()
	sched.Start(s)

	je := waitJob(t, stopped, string(KindHeartbeat), 5*time.Second)
	if je.Err != nil {
		t.Fatalf("heartbeat failed: %v", je.Err)
	}
	hb := s.Heartbeat()
	if hb == nil || hb.UserUpdateTime != 7 {
		t.Fatalf("heartbeat snapshot = %+v", hb)
	}

	// No account-info snapshot yet, so the heartbeat counts as drifted and
	// the refresh follows shortly.
	je = waitJob(t, stopped, string(KindAccountInfo), 5*time.Second)
	if je.Err != nil {
		t.Fatalf("account-info failed: %v", je.Err)
	}
	info := s.AccountInfo()
	if info == nil || info.Email != "one@example.com" {
		t.Fatalf("account-info snapshot = %+v", info)
	}
	if info.SpaceUsed != 10 || info.SpaceTotal != 100 {
		t.Errorf("space = %d/%d, want 10/100", info.SpaceUsed, info.SpaceTotal)
	}
	// The profile round trip overrides the nickname and adds the avatar.
	if info.Nickname != "One Display" || info.Avatar != "a1.png" {
		t.Errorf("profile enrichment = %q/%q", info.Nickname, info.Avatar)
	}
	if info.Drifted(hb) {
		t.Error("fresh account-info should not report drift against the same heartbeat")
	}
}

func TestScheduleSupersedesPendingRun(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	bus := events.NewEventBus(0)
	defer bus.Close()

	client := testClient(t, srv)
	s := testSession(client, bus)
	mgr := session.NewManager(bus)
	mgr.Set(s)

	sched := New(client, store.NewMemoryStore(), mgr, bus, nil, logging.NewLogger("daemon"), Options{
		ShortDelay: time.Hour,
		LongDelay:  time.Hour,
	})
	defer sched.Stop()

	// Two schedules back to back: only the second survives.
	sched.Schedule(s, KindHeartbeat, 30*time.Millisecond)
	sched.Schedule(s, KindHeartbeat, 30*time.Millisecond)

	time.Sleep(500 * time.Millisecond)
	if got := hits.Load(); got != 1 {
		t.Errorf("heartbeat ran %d times, want 1", got)
	}
}

func TestRunSkippedWhenSessionReplaced(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	bus := events.NewEventBus(0)
	defer bus.Close()

	client := testClient(t, srv)
	old := testSession(client, bus)
	mgr := session.NewManager(bus)
	mgr.Set(old)

	sched := New(client, store.NewMemoryStore(), mgr, bus, nil, logging.NewLogger("daemon"), Options{
		ShortDelay: time.Hour,
		LongDelay:  time.Hour,
	})
	defer sched.Stop()

	sched.Schedule(old, KindHeartbeat, 30*time.Millisecond)
	mgr.Set(testSession(client, bus))

	time.Sleep(300 * time.Millisecond)
	if got := hits.Load(); got != 0 {
		t.Errorf("stale session's heartbeat ran %d times, want 0", got)
	}
}

func TestSupersededSessionPrunesJobState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	bus := events.NewEventBus(0)
	defer bus.Close()

	client := testClient(t, srv)
	old := testSession(client, bus)
	mgr := session.NewManager(bus)
	mgr.Set(old)

	sched := New(client, store.NewMemoryStore(), mgr, bus, nil, logging.NewLogger("daemon"), Options{
		ShortDelay: time.Hour,
		LongDelay:  time.Hour,
	})
	defer sched.Stop()

	sched.Schedule(old, KindHeartbeat, 10*time.Millisecond)
	mgr.Set(testSession(client, bus))

	// The fired timer notices the replacement and drops the old
	// session's entries instead of leaving them behind.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sched.mu.Lock()
		left := len(sched.gen) + len(sched.timers)
		sched.mu.Unlock()
		if left == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d job-state entries left for the superseded session", left)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHeartbeatDelayAdaptive(t *testing.T) {
	network := NewStaticNetwork()
	sched := New(nil, store.NewMemoryStore(), session.NewManager(nil), events.NewEventBus(0), network, logging.NewLogger("daemon"), Options{
		ShortDelay: 30 * time.Second,
		LongDelay:  5 * time.Minute,
	})

	if got := sched.heartbeatDelay(); got != 30*time.Second {
		t.Errorf("unmetered foreground delay = %v, want short", got)
	}
	network.SetMetered(true)
	if got := sched.heartbeatDelay(); got != 5*time.Minute {
		t.Errorf("metered delay = %v, want long", got)
	}
	network.SetMetered(false)
	network.SetBackground(true)
	if got := sched.heartbeatDelay(); got != 5*time.Minute {
		t.Errorf("background delay = %v, want long", got)
	}
}

func TestLogoutClearsSessionAndPersistsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/login" || r.URL.Query().Get("action") != "logout" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"error": {"code": 0}}`)
	}))
	defer srv.Close()

	bus := events.NewEventBus(0)
	defer bus.Close()
	stopped := bus.Subscribe(events.EventJobStopped)

	client := testClient(t, srv)
	s := testSession(client, bus)
	mgr := session.NewManager(bus)
	mgr.Set(s)

	st := store.NewMemoryStore()
	if err := st.UpsertCredential(s.Credential()); err != nil {
		t.Fatal(err)
	}

	sched := New(client, st, mgr, bus, nil, logging.NewLogger("daemon"), Options{})
	defer sched.Stop()
	sched.Logout(s)

	je := waitJob(t, stopped, string(KindLogout), 5*time.Second)
	if je.Err != nil {
		t.Fatalf("logout failed: %v", je.Err)
	}
	if mgr.Current() != nil {
		t.Error("current session should be cleared after logout")
	}
	cred, ok, err := st.CredentialByUserKey("u1")
	if err != nil || !ok {
		t.Fatalf("credential lookup: ok=%v err=%v", ok, err)
	}
	if cred.Status != models.CredentialStatusLogout {
		t.Errorf("credential status = %q, want %q", cred.Status, models.CredentialStatusLogout)
	}
}

func TestLogoutWaitsForHeartbeatLock(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	bus := events.NewEventBus(0)
	defer bus.Close()
	stopped := bus.Subscribe(events.EventJobStopped)

	client := testClient(t, srv)
	s := testSession(client, bus)
	mgr := session.NewManager(bus)
	mgr.Set(s)

	st := store.NewMemoryStore()
	sched := New(client, st, mgr, bus, nil, logging.NewLogger("daemon"), Options{})
	defer sched.Stop()

	// A held heartbeat lock stands in for an in-flight heartbeat body.
	s.HeartbeatLock().Lock()
	sched.Logout(s)

	time.Sleep(100 * time.Millisecond)
	if got := hits.Load(); got != 0 {
		t.Fatalf("logout ran while the heartbeat lock was held (%d hits)", got)
	}

	s.HeartbeatLock().Unlock()
	je := waitJob(t, stopped, string(KindLogout), 5*time.Second)
	if je.Err != nil {
		t.Fatalf("logout failed: %v", je.Err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("logout hit the server %d times, want 1", got)
	}
}
