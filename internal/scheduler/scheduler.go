// Package scheduler runs the background jobs of the current session:
// the recurring heartbeat, the drift-triggered account-info refresh and
// logout. At most one run per (session, kind) is pending at any time;
// scheduling again supersedes the pending run.
package scheduler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/datumcloud/datum-sync/internal/apperr"
	"github.com/datumcloud/datum-sync/internal/constants"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/logging"
	"github.com/datumcloud/datum-sync/internal/models"
	"github.com/datumcloud/datum-sync/internal/session"
	"github.com/datumcloud/datum-sync/internal/store"
)

// Kind names a background job.
type Kind string

const (
	KindHeartbeat   Kind = "heartbeat"
	KindAccountInfo Kind = "accountinfo"
	KindLogout      Kind = "logout"
)

// Options tunes the job cadence. Zero values fall back to the compiled
// defaults.
type Options struct {
	ShortDelay       time.Duration
	LongDelay        time.Duration
	AccountInfoDelay time.Duration
}

type jobKey struct {
	session *session.Session
	kind    Kind
}

// Scheduler owns the timers and generation counters for background
// jobs. A job run is abandoned, without side effects, when a newer run
// of the same kind was scheduled for the same session, or when the
// session is no longer the current one.
type Scheduler struct {
	client   *gateway.Client
	store    store.Store
	sessions *session.Manager
	bus      *events.EventBus
	network  NetworkMonitor
	logger   *logging.Logger
	opts     Options

	mu     sync.Mutex
	gen    map[jobKey]uint64
	timers map[jobKey]*time.Timer
	closed bool
}

// New creates a scheduler. network may be nil, in which case an
// unmetered foregrounded monitor is assumed.
func New(client *gateway.Client, st store.Store, sessions *session.Manager, bus *events.EventBus, network NetworkMonitor, logger *logging.Logger, opts Options) *Scheduler {
	if opts.ShortDelay <= 0 {
		opts.ShortDelay = constants.HeartbeatShortDelay
	}
	if opts.LongDelay <= 0 {
		opts.LongDelay = constants.HeartbeatLongDelay
	}
	if opts.AccountInfoDelay <= 0 {
		opts.AccountInfoDelay = constants.AccountInfoDelay
	}
	if network == nil {
		network = NewStaticNetwork()
	}
	return &Scheduler{
		client:   client,
		store:    st,
		sessions: sessions,
		bus:      bus,
		network:  network,
		logger:   logger,
		opts:     opts,
		gen:      make(map[jobKey]uint64),
		timers:   make(map[jobKey]*time.Timer),
	}
}

// Schedule arranges one run of kind for s after delay, superseding any
// pending run of the same kind for the same session.
func (sc *Scheduler) Schedule(s *session.Session, kind Kind, delay time.Duration) {
	if s == nil {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}

	k := jobKey{session: s, kind: kind}
	sc.gen[k]++
	gen := sc.gen[k]
	if t := sc.timers[k]; t != nil {
		t.Stop()
	}
	sc.timers[k] = time.AfterFunc(delay, func() {
		sc.run(s, kind, gen)
	})
}

// Start kicks off the recurring heartbeat for s.
func (sc *Scheduler) Start(s *session.Session) {
	sc.Schedule(s, KindHeartbeat, 0)
}

// Logout schedules an immediate logout for s.
func (sc *Scheduler) Logout(s *session.Session) {
	sc.Schedule(s, KindLogout, 0)
}

// Stop cancels every pending run. The scheduler accepts no further work.
func (sc *Scheduler) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	for _, t := range sc.timers {
		t.Stop()
	}
	sc.timers = make(map[jobKey]*time.Timer)
	sc.gen = make(map[jobKey]uint64)
}

// current reports whether gen is still the latest generation for
// (s, kind) and s is still the current session. Job bodies check this
// before and after taking their lock; a stale run does nothing.
func (sc *Scheduler) current(s *session.Session, kind Kind, gen uint64) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed || sc.gen[jobKey{session: s, kind: kind}] != gen {
		return false
	}
	if !sc.sessions.IsCurrent(s) {
		sc.forgetLocked(s)
		return false
	}
	return true
}

// forgetLocked drops every timer and generation entry of a session that
// is no longer current. Sessions are never re-installed once replaced,
// so the entries would otherwise live for the process lifetime. Caller
// holds mu.
func (sc *Scheduler) forgetLocked(s *session.Session) {
	for _, kind := range []Kind{KindHeartbeat, KindAccountInfo, KindLogout} {
		k := jobKey{session: s, kind: kind}
		if t := sc.timers[k]; t != nil {
			t.Stop()
		}
		delete(sc.timers, k)
		delete(sc.gen, k)
	}
}

func (sc *Scheduler) run(s *session.Session, kind Kind, gen uint64) {
	if !sc.current(s, kind, gen) {
		return
	}

	ctx := context.Background()
	switch kind {
	case KindHeartbeat:
		sc.runHeartbeat(ctx, s, gen)
	case KindAccountInfo:
		sc.runAccountInfo(ctx, s, gen)
	case KindLogout:
		sc.runLogout(ctx, s, gen)
	}
}

// heartbeatDelay returns the adaptive reschedule delay: short only when
// the network is unmetered and the app is foregrounded.
func (sc *Scheduler) heartbeatDelay() time.Duration {
	if !sc.network.Metered() && sc.network.Foregrounded() {
		return sc.opts.ShortDelay
	}
	return sc.opts.LongDelay
}

func (sc *Scheduler) runHeartbeat(ctx context.Context, s *session.Session, gen uint64) {
	lock := s.HeartbeatLock()
	lock.Lock()
	defer lock.Unlock()

	// The generation may have moved while we waited on the lock.
	if !sc.current(s, KindHeartbeat, gen) {
		return
	}

	sc.bus.PublishJobRunning(string(KindHeartbeat), s.UserKey())
	hb, err := sc.fetchHeartbeat(ctx, s)
	sc.bus.PublishJobStopped(string(KindHeartbeat), s.UserKey(), err)

	if err != nil {
		sc.logger.Warn().Err(err).Msg("heartbeat failed, backing off")
		sc.Schedule(s, KindHeartbeat, sc.opts.LongDelay)
		return
	}

	s.SetHeartbeat(hb)

	// A schedule issued while this body ran owns the cadence now; the
	// chained reschedule is suppressed.
	if !sc.current(s, KindHeartbeat, gen) {
		return
	}
	if s.AccountInfo().Drifted(hb) {
		sc.Schedule(s, KindAccountInfo, sc.opts.AccountInfoDelay)
	}
	sc.Schedule(s, KindHeartbeat, sc.heartbeatDelay())
}

func (sc *Scheduler) fetchHeartbeat(ctx context.Context, s *session.Session) (*models.HeartbeatSnapshot, error) {
	params := url.Values{}
	params.Set("action", gateway.ActionAccess)
	params.Set("token", s.Token())

	requestTime := time.Now()
	node, err := sc.client.Request(ctx, apperr.ActionAccountHeartbeat, gateway.PathUserHeartbeat, params)
	if err != nil {
		return nil, err
	}

	return &models.HeartbeatSnapshot{
		RequestTime:       requestTime,
		UserUpdateTime:    node.Int64("userupdatetime", 0),
		InviteCount:       node.Int("invitecount", 0),
		InviteUpdateTime:  node.Int64("inviteupdatetime", 0),
		MessageCount:      node.Int("messagecount", 0),
		MessageUpdateTime: node.Int64("messageupdatetime", 0),
	}, nil
}

func (sc *Scheduler) runAccountInfo(ctx context.Context, s *session.Session, gen uint64) {
	lock := s.AccountInfoLock()
	lock.Lock()
	defer lock.Unlock()

	if !sc.current(s, KindAccountInfo, gen) {
		return
	}

	sc.bus.PublishJobRunning(string(KindAccountInfo), s.UserKey())
	info, err := sc.fetchAccountInfo(ctx, s)
	sc.bus.PublishJobStopped(string(KindAccountInfo), s.UserKey(), err)

	if err != nil {
		// The next heartbeat re-detects the drift and retries.
		sc.logger.Warn().Err(err).Msg("account-info refresh failed")
		return
	}

	s.SetAccountInfo(info)
	if !sc.current(s, KindAccountInfo, gen) {
		return
	}
	sc.Schedule(s, KindHeartbeat, sc.heartbeatDelay())
}

func (sc *Scheduler) fetchAccountInfo(ctx context.Context, s *session.Session) (*models.AccountInfoSnapshot, error) {
	params := url.Values{}
	params.Set("action", gateway.ActionInfo)
	params.Set("token", s.Token())

	requestTime := time.Now()
	node, err := sc.client.Request(ctx, apperr.ActionAccountInfo, gateway.PathUserHeartbeat, params)
	if err != nil {
		return nil, err
	}

	info := &models.AccountInfoSnapshot{
		RequestTime:       requestTime,
		Email:             node.Str("email", ""),
		Nickname:          node.Str("nickname", ""),
		UserUpdateTime:    node.Int64("userupdatetime", 0),
		InviteCount:       node.Int("invitecount", 0),
		InviteUpdateTime:  node.Int64("inviteupdatetime", 0),
		MessageCount:      node.Int("messagecount", 0),
		MessageUpdateTime: node.Int64("messageupdatetime", 0),
	}

	spaceParams := url.Values{}
	spaceParams.Set("token", s.Token())
	spaceNode, err := sc.client.Request(ctx, apperr.ActionAccountSpace, gateway.PathUserSpace, spaceParams)
	if err != nil {
		return nil, err
	}
	info.SpaceUsed = spaceNode.Int64("used", 0)
	info.SpaceTotal = spaceNode.Int64("total", 0)

	// Profile enrichment is best effort; the fields above already cover
	// the drift contract.
	profileParams := url.Values{}
	profileParams.Set("token", s.Token())
	if prof, perr := sc.client.Request(ctx, apperr.ActionAccountProfile, gateway.PathUserProfile, profileParams); perr != nil {
		sc.logger.Debug().Err(perr).Msg("profile fetch skipped")
	} else {
		if nick := prof.Str("nickname", ""); nick != "" {
			info.Nickname = nick
		}
		info.Avatar = prof.Str("avatar", "")
	}

	return info, nil
}

// runLogout takes the heartbeat lock first and the account-info lock
// second. Every multi-lock path uses this order.
func (sc *Scheduler) runLogout(ctx context.Context, s *session.Session, gen uint64) {
	hbLock := s.HeartbeatLock()
	hbLock.Lock()
	defer hbLock.Unlock()
	aiLock := s.AccountInfoLock()
	aiLock.Lock()
	defer aiLock.Unlock()

	if !sc.current(s, KindLogout, gen) {
		return
	}

	sc.bus.PublishJobRunning(string(KindLogout), s.UserKey())

	params := url.Values{}
	params.Set("action", gateway.ActionLogout)
	params.Set("token", s.Token())
	_, err := sc.client.Request(ctx, apperr.ActionAccountLogout, gateway.PathUserLogin, params)

	sc.bus.PublishJobStopped(string(KindLogout), s.UserKey(), err)

	cred := s.Credential()
	if err != nil {
		sc.logger.Warn().Err(err).Str("user", cred.Email).Msg("logout failed")
		cred.MarkError(apperr.CodeOf(err), err.Error())
		if serr := sc.store.UpsertCredential(cred); serr != nil {
			sc.logger.Error().Err(serr).Msg("failed to persist credential state")
		}
		sc.bus.PublishActionError(string(apperr.ActionAccountLogout), apperr.CodeOf(err), err)
		return
	}

	cred.MarkLogout()
	if serr := sc.store.UpsertCredential(cred); serr != nil {
		sc.logger.Error().Err(serr).Msg("failed to persist credential state")
	}
	sc.sessions.Clear(s)
	sc.mu.Lock()
	sc.forgetLocked(s)
	sc.mu.Unlock()
	sc.logger.Info().Str("user", cred.Email).Msg("logged out")
}
