package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datumcloud/datum-sync/internal/auth"
	"github.com/datumcloud/datum-sync/internal/cluster"
	"github.com/datumcloud/datum-sync/internal/config"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/scheduler"
	"github.com/datumcloud/datum-sync/internal/session"
	"github.com/datumcloud/datum-sync/internal/store"
)

// app wires the engine together for one command invocation.
type app struct {
	cfg      *config.Config
	store    *store.FileStore
	bus      *events.EventBus
	client   *gateway.Client
	sessions *session.Manager
	auth     *auth.Manager
	sched    *scheduler.Scheduler
	resolver *cluster.Resolver
}

func newApp() (*app, error) {
	return newAppWith(nil)
}

// newAppWith lets a command adjust the loaded configuration (flag
// overrides) before the client is built from it.
func newAppWith(mutate func(*config.Config)) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	// A blank entry address is fine once an account exists; silent
	// re-auth targets the stored host directly.
	if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrMissingEntryAddr) {
		return nil, err
	}

	path := storePath
	if path == "" {
		path, err = store.DefaultStorePath()
		if err != nil {
			return nil, err
		}
	}
	st := store.NewFileStore(path)
	if err := st.Load(); err != nil {
		return nil, err
	}

	bus := events.NewEventBus(0)
	client, err := gateway.NewClient(cfg, GetLogger())
	if err != nil {
		bus.Close()
		return nil, err
	}

	sessions := session.NewManager(bus)
	authMgr := auth.NewManager(client, st, sessions, bus, GetLogger(), cfg.Sync.SectionPageSize, cfg.Sync.SearchCapacity)
	sched := scheduler.New(client, st, sessions, bus, nil, GetLogger(), scheduler.Options{
		ShortDelay: time.Duration(cfg.Sync.HeartbeatShortSeconds) * time.Second,
		LongDelay:  time.Duration(cfg.Sync.HeartbeatLongSeconds) * time.Second,
	})
	resolver := cluster.NewResolver(client, st, bus, GetLogger())

	return &app{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		client:   client,
		sessions: sessions,
		auth:     authMgr,
		sched:    sched,
		resolver: resolver,
	}, nil
}

func (a *app) Close() {
	a.sched.Stop()
	a.bus.Close()
}

// authenticate runs silent re-auth and maps the non-authenticated
// outcomes onto actionable errors.
func (a *app) authenticate(ctx context.Context, email string) (*session.Session, error) {
	state, err := a.auth.Authenticate(ctx, email, false)
	if err != nil {
		return nil, err
	}
	switch state {
	case auth.StateAuthenticated:
		return a.sessions.Current(), nil
	case auth.StateNoAccount:
		return nil, fmt.Errorf("no stored accounts; run 'datum-sync login' first")
	case auth.StateSelectAccount:
		return nil, fmt.Errorf("no signed-in account matched; run 'datum-sync login' or pass --email")
	default:
		return nil, fmt.Errorf("authentication failed (%s)", state)
	}
}
