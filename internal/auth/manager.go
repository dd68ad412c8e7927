// Package auth runs the login, register and silent re-authentication
// protocol and produces the current session.
package auth

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datumcloud/datum-sync/internal/apperr"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/jsontree"
	"github.com/datumcloud/datum-sync/internal/logging"
	"github.com/datumcloud/datum-sync/internal/models"
	"github.com/datumcloud/datum-sync/internal/session"
	"github.com/datumcloud/datum-sync/internal/store"
)

// State is an authentication state machine position.
type State string

const (
	StateNoAccount       State = "no_account"
	StateSelectAccount   State = "select_account"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateAuthFailed      State = "auth_failed"
	StateLoginSuccess    State = "login_success"
	StateLoginFailed     State = "login_failed"
	StateRegisterSuccess State = "register_success"
	StateRegisterFailed  State = "register_failed"
)

// Manager drives authentication. All flows converge on onAuthenticated,
// which persists the host and credential records and installs the new
// session as current.
type Manager struct {
	client   *gateway.Client
	store    store.Store
	sessions *session.Manager
	bus      *events.EventBus
	logger   *logging.Logger

	pageSize       int
	searchCapacity int

	mu    sync.Mutex
	state State
}

// NewManager creates an authentication manager. pageSize and
// searchCapacity are handed to each session it builds.
func NewManager(client *gateway.Client, st store.Store, sessions *session.Manager, bus *events.EventBus, logger *logging.Logger, pageSize, searchCapacity int) *Manager {
	return &Manager{
		client:         client,
		store:          st,
		sessions:       sessions,
		bus:            bus,
		logger:         logger,
		pageSize:       pageSize,
		searchCapacity: searchCapacity,
		state:          StateNoAccount,
	}
}

// State returns the current state machine position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State, email string) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(&events.AuthStateEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventAuthState, Time: time.Now()},
			State:     string(s),
			Email:     email,
		})
	}
}

// Authenticate attempts silent re-authentication. With checkOnly it only
// reports whether any credential exists, without touching the network.
// preferredEmail, when non-empty, selects the credential to try first.
func (m *Manager) Authenticate(ctx context.Context, preferredEmail string, checkOnly bool) (State, error) {
	if m.sessions.Current() != nil {
		m.setState(StateAuthenticated, preferredEmail)
		return StateAuthenticated, nil
	}

	creds, err := m.store.Credentials()
	if err != nil {
		return StateAuthFailed, apperr.Wrap(apperr.ActionAccountAuth, err)
	}
	if len(creds) == 0 {
		m.setState(StateNoAccount, preferredEmail)
		return StateNoAccount, nil
	}
	if checkOnly {
		m.setState(StateSelectAccount, preferredEmail)
		return StateSelectAccount, nil
	}

	cand := pickCandidate(creds, preferredEmail)
	if cand == nil {
		m.setState(StateSelectAccount, preferredEmail)
		return StateSelectAccount, nil
	}

	m.setState(StateAuthenticating, cand.Email)

	params := url.Values{}
	params.Set("action", gateway.ActionAuthLogin)
	params.Set("authkey", cand.AuthKey)
	params.Set("devicekey", cand.DeviceKey)
	params.Set("clientkey", cand.ClientKey)

	node, err := m.request(ctx, apperr.ActionAccountAuth, cand, params)
	if err != nil {
		m.recordFailure(cand, err)
		m.setState(StateAuthFailed, cand.Email)
		return StateAuthFailed, err
	}

	if _, err := m.onAuthenticated(node, *cand, apperr.ActionAccountAuth); err != nil {
		m.recordFailure(cand, err)
		m.setState(StateAuthFailed, cand.Email)
		return StateAuthFailed, err
	}
	m.setState(StateAuthenticated, cand.Email)
	return StateAuthenticated, nil
}

// Login authenticates with username and password. isRegister creates the
// account first and requires a non-empty email.
func (m *Manager) Login(ctx context.Context, username, password, email string, isRegister bool) (State, error) {
	action := apperr.ActionAccountLogin
	loginAction := gateway.ActionLogin
	okState, failState := StateLoginSuccess, StateLoginFailed
	if isRegister {
		action = apperr.ActionAccountRegister
		loginAction = gateway.ActionRegisterLogin
		okState, failState = StateRegisterSuccess, StateRegisterFailed
		if email == "" {
			err := apperr.New(action, "register requires an email address")
			m.setState(failState, email)
			return failState, err
		}
	}
	if email == "" {
		email = username
	}

	seed := models.Credential{Email: email, DeviceKey: m.deviceKeyFor(email)}

	m.setState(StateAuthenticating, email)

	params := url.Values{}
	params.Set("action", loginAction)
	params.Set("username", username)
	params.Set("password", password)
	params.Set("devicekey", seed.DeviceKey)
	if isRegister {
		params.Set("email", email)
	}

	node, err := m.client.Request(ctx, action, gateway.PathUserLogin, params)
	if err != nil {
		m.recordFailureByEmail(email, err)
		m.setState(failState, email)
		return failState, err
	}

	if _, err := m.onAuthenticated(node, seed, action); err != nil {
		m.recordFailureByEmail(email, err)
		m.setState(failState, email)
		return failState, err
	}
	m.setState(okState, email)
	return okState, nil
}

// request targets the credential's stored host when one is known,
// falling back to the configured entry address.
func (m *Manager) request(ctx context.Context, action apperr.Action, cred *models.Credential, params url.Values) (jsontree.Node, error) {
	if cred.ClusterID != "" && cred.HostKey != "" {
		if host, ok, err := m.store.Host(cred.ClusterID, cred.HostKey); err == nil && ok {
			if base := host.BaseURL(); base != "" {
				return m.client.RequestURL(ctx, action, base, gateway.PathUserLogin, params)
			}
		}
	}
	return m.client.Request(ctx, action, gateway.PathUserLogin, params)
}

// onAuthenticated is the single convergence point of the register, login
// and silent re-auth flows. It parses the system and user blocks,
// persists host and credential, then installs the new session.
func (m *Manager) onAuthenticated(node jsontree.Node, seed models.Credential, action apperr.Action) (*session.Session, error) {
	system := node.Obj("system")
	user := node.Obj("user")

	host := models.HostRecord{
		ClusterID:     system.Str("clusterid", ""),
		ClusterDomain: system.Str("clusterdomain", ""),
		HostKey:       system.Str("hostkey", ""),
		HostName:      system.Str("hostname", ""),
		HostAddr:      system.Str("hostaddr", ""),
		LanAddr:       system.Str("lanaddr", ""),
		Domain:        system.Str("domain", ""),
		HTTPPort:      system.Int("httpport", 0),
		HTTPSPort:     system.Int("httpsport", 0),
		Status:        models.HostStatusOK,
		Heartbeat:     system.Int64("heartbeat", 0),
	}

	cred := seed
	cred.UserKey = user.Str("userkey", "")
	cred.ClientKey = user.Str("clientkey", seed.ClientKey)
	cred.AuthKey = user.Str("authkey", seed.AuthKey)
	cred.Token = user.Str("token", "")
	if email := user.Str("email", ""); email != "" {
		cred.Email = email
	}
	cred.Nickname = user.Str("nickname", seed.Nickname)
	if dk := user.Str("devicekey", ""); dk != "" {
		cred.DeviceKey = dk
	}
	cred.ClusterID = host.ClusterID
	cred.HostKey = host.HostKey

	// Every one of the six identity fields is required. A response
	// missing any of them is a protocol violation, not a retryable
	// failure.
	if host.ClusterID == "" || host.HostKey == "" || cred.UserKey == "" ||
		cred.ClientKey == "" || cred.AuthKey == "" || cred.Token == "" {
		return nil, apperr.New(action, "incomplete identity in server response")
	}

	if existing, ok, err := m.store.Host(host.ClusterID, host.HostKey); err == nil && ok {
		merged := existing
		merged.MergeVolatile(&host)
		if merged.HostName == "" {
			merged.HostName = host.HostName
		}
		host = merged
	}
	if err := m.store.UpsertHost(host); err != nil {
		return nil, apperr.Wrap(action, err)
	}

	cred.MarkLogin()
	if err := m.store.UpsertCredential(cred); err != nil {
		return nil, apperr.Wrap(action, err)
	}

	m.client.SetCurrentHost(&host)
	s := session.New(cred, host, m.client, m.bus, m.pageSize, m.searchCapacity)
	m.sessions.Set(s)

	m.logger.Info().Str("user", cred.Email).Str("host", host.HostKey).Msg("authenticated")
	return s, nil
}

// deviceKeyFor reuses the device key of any stored credential for the
// email, minting a fresh one otherwise. Device keys are created once per
// account and never regenerated client-side.
func (m *Manager) deviceKeyFor(email string) string {
	if creds, err := m.store.Credentials(); err == nil {
		for i := range creds {
			if creds[i].Email == email && creds[i].DeviceKey != "" {
				return creds[i].DeviceKey
			}
		}
	}
	return uuid.NewString()
}

func (m *Manager) recordFailure(cred *models.Credential, cause error) {
	cred.MarkError(apperr.CodeOf(cause), cause.Error())
	if err := m.store.UpsertCredential(*cred); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist credential state")
	}
	if m.bus != nil {
		m.bus.PublishActionError(string(apperr.ActionOf(cause)), apperr.CodeOf(cause), cause)
	}
}

func (m *Manager) recordFailureByEmail(email string, cause error) {
	creds, err := m.store.Credentials()
	if err != nil {
		return
	}
	for i := range creds {
		if creds[i].Email == email {
			m.recordFailure(&creds[i], cause)
			return
		}
	}
	if m.bus != nil {
		m.bus.PublishActionError(string(apperr.ActionOf(cause)), apperr.CodeOf(cause), cause)
	}
}

// pickCandidate prefers an exact email match, then the most recently
// updated credential that is complete and still in login status.
func pickCandidate(creds []models.Credential, preferredEmail string) *models.Credential {
	if preferredEmail != "" {
		for i := range creds {
			if creds[i].Email == preferredEmail && creds[i].Complete() {
				return &creds[i]
			}
		}
	}

	var cand *models.Credential
	for i := range creds {
		c := &creds[i]
		if !c.Complete() || c.Status != models.CredentialStatusLogin {
			continue
		}
		if cand == nil || c.UpdatedAt.After(cand.UpdatedAt) {
			cand = c
		}
	}
	return cand
}
