package cluster

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/datumcloud/datum-sync/internal/config"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/logging"
	"github.com/datumcloud/datum-sync/internal/models"
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

func TestResolveMergesVolatileFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/cluster" || r.URL.Query().Get("action") != "get" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"hosts": [
			{"hostkey": "h1", "hostname": "alpha", "hostaddr": "10.0.0.5", "httpport": 9000, "status": "ok", "heartbeat": 42},
			{"hostkey": "h2", "hostname": "beta", "hostaddr": "10.0.0.9", "httpport": 9000, "status": "offline", "heartbeat": 7}
		]}`)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	if err := st.UpsertHost(models.HostRecord{
		ClusterID: "c1",
		HostKey:   "h1",
		HostName:  "alpha",
		HostAddr:  "10.0.0.1",
		HTTPPort:  8080,
		Status:    models.HostStatusOK,
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertHost(models.HostRecord{
		ClusterID: "c1",
		HostKey:   "h2",
		HostName:  "beta",
		HostAddr:  "10.0.0.2",
		HTTPPort:  8080,
		Status:    models.HostStatusOK,
	}); err != nil {
		t.Fatal(err)
	}

	client := testClient(t, srv)
	res := NewResolver(client, st, nil, logging.NewLogger("daemon"))
	if err := res.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	h1, ok, err := st.Host("c1", "h1")
	if err != nil || !ok {
		t.Fatalf("h1 lookup: ok=%v err=%v", ok, err)
	}
	if h1.HostAddr != "10.0.0.5" || h1.HTTPPort != 9000 || h1.Heartbeat != 42 {
		t.Errorf("h1 volatile fields not merged: %+v", h1)
	}
	if h1.HostName != "alpha" {
		t.Errorf("h1 identity changed: %+v", h1)
	}

	// Offline hosts keep their last known-good address.
	h2, ok, err := st.Host("c1", "h2")
	if err != nil || !ok {
		t.Fatalf("h2 lookup: ok=%v err=%v", ok, err)
	}
	if h2.HostAddr != "10.0.0.2" || h2.Status != models.HostStatusOK {
		t.Errorf("offline host should be untouched: %+v", h2)
	}
}

func TestResolveDiscoversNewHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hosts": [
			{"hostkey": "h9", "hostname": "gamma", "hostaddr": "10.0.0.9", "httpport": 9000, "status": "ok"}
		]}`)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	if err := st.UpsertHost(models.HostRecord{ClusterID: "c1", HostKey: "h1", HostAddr: "10.0.0.1", Status: models.HostStatusOK}); err != nil {
		t.Fatal(err)
	}

	client := testClient(t, srv)
	res := NewResolver(client, st, nil, logging.NewLogger("daemon"))
	if err := res.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	h9, ok, err := st.Host("c1", "h9")
	if err != nil || !ok {
		t.Fatalf("new host not stored: ok=%v err=%v", ok, err)
	}
	if h9.HostAddr != "10.0.0.9" || h9.ClusterID != "c1" {
		t.Errorf("new host record = %+v", h9)
	}
}

func TestResolveRefreshesCurrentHostAndPublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hosts": [
			{"hostkey": "h1", "hostname": "alpha", "hostaddr": "10.0.0.5", "httpport": 9000, "status": "ok"}
		]}`)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	if err := st.UpsertHost(models.HostRecord{ClusterID: "c1", HostKey: "h1", HostAddr: "10.0.0.1", HTTPPort: 8080, Status: models.HostStatusOK}); err != nil {
		t.Fatal(err)
	}

	bus := events.NewEventBus(0)
	defer bus.Close()
	changed := bus.Subscribe(events.EventHostChanged)

	client := testClient(t, srv)

	// The current host must point at the test server or the discovery
	// request itself would go nowhere.
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	client.SetCurrentHost(&models.HostRecord{ClusterID: "c1", HostKey: "h1", HostAddr: u.Hostname(), HTTPPort: port})

	res := NewResolver(client, st, bus, logging.NewLogger("daemon"))
	if err := res.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	cur := client.CurrentHost()
	if cur == nil || cur.HostAddr != "10.0.0.5" || cur.HTTPPort != 9000 {
		t.Fatalf("current host not refreshed: %+v", cur)
	}
	if client.BaseURL() != "http://10.0.0.5:9000" {
		t.Errorf("base URL = %q", client.BaseURL())
	}

	select {
	case ev := <-changed:
		hc, ok := ev.(*events.HostChangedEvent)
		if !ok || hc.HostAddr != "10.0.0.5" {
			t.Errorf("host-changed event = %+v", ev)
		}
	default:
		t.Error("no host-changed event published")
	}
}
