// Package session holds the live state of one authenticated account and
// the application-level current-session pointer.
package session

import (
	"sync"

	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/listing"
	"github.com/datumcloud/datum-sync/internal/models"
)

// Session is the in-memory aggregate of everything known about one
// authenticated account: the latest heartbeat and account-info
// snapshots, the dashboard, the library list and the storage nodes.
// One mutex guards all mutable fields; the two job locks are separate
// and guard the scheduler's job bodies, not the state.
type Session struct {
	credential models.Credential
	host       models.HostRecord
	token      string

	bus      *events.EventBus
	pageSize int
	fetcher  *listing.GatewayFetcher
	searches *listing.SearchList

	// Job-body locks. Logout acquires heartbeatMu then accountInfoMu,
	// in that order, everywhere.
	heartbeatMu   sync.Mutex
	accountInfoMu sync.Mutex

	mu           sync.Mutex
	heartbeat    *models.HeartbeatSnapshot
	accountInfo  *models.AccountInfoSnapshot
	dashboard    *models.DashboardSnapshot
	libraries    []*listing.Library
	storageNodes []models.StorageNode
}

// New builds a session for an authenticated credential on a host.
// pageSize and searchCapacity come from configuration.
func New(cred models.Credential, host models.HostRecord, client *gateway.Client, bus *events.EventBus, pageSize, searchCapacity int) *Session {
	token := gateway.AuthToken(host.HostKey, cred.UserKey, cred.Token)
	fetcher := listing.NewGatewayFetcher(client, token)
	return &Session{
		credential: cred,
		host:       host,
		token:      token,
		bus:        bus,
		pageSize:   pageSize,
		fetcher:    fetcher,
		searches:   listing.NewSearchList(fetcher, bus, pageSize, searchCapacity),
	}
}

// Credential returns the credential the session was built from.
func (s *Session) Credential() models.Credential {
	return s.credential
}

// Host returns the host the session authenticated against.
func (s *Session) Host() models.HostRecord {
	return s.host
}

// UserKey returns the session's user key.
func (s *Session) UserKey() string {
	return s.credential.UserKey
}

// Token returns the composed auth token for requests.
func (s *Session) Token() string {
	return s.token
}

// Searches returns the session-scoped search registry.
func (s *Session) Searches() *listing.SearchList {
	return s.searches
}

// HeartbeatLock returns the heartbeat job-body lock.
func (s *Session) HeartbeatLock() *sync.Mutex {
	return &s.heartbeatMu
}

// AccountInfoLock returns the account-info job-body lock.
func (s *Session) AccountInfoLock() *sync.Mutex {
	return &s.accountInfoMu
}

// SetHeartbeat stores the latest heartbeat snapshot.
func (s *Session) SetHeartbeat(hb *models.HeartbeatSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeat = hb
}

// Heartbeat returns the latest heartbeat snapshot, or nil.
func (s *Session) Heartbeat() *models.HeartbeatSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heartbeat == nil {
		return nil
	}
	hb := *s.heartbeat
	return &hb
}

// SetAccountInfo stores the latest account-info snapshot.
func (s *Session) SetAccountInfo(info *models.AccountInfoSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountInfo = info
}

// AccountInfo returns the latest account-info snapshot, or nil.
func (s *Session) AccountInfo() *models.AccountInfoSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accountInfo == nil {
		return nil
	}
	info := *s.accountInfo
	return &info
}

// SetDashboard stores the latest dashboard snapshot.
func (s *Session) SetDashboard(d *models.DashboardSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dashboard = d
}

// Dashboard returns the latest dashboard snapshot, or nil.
func (s *Session) Dashboard() *models.DashboardSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dashboard == nil {
		return nil
	}
	d := *s.dashboard
	d.Items = append([]models.DashboardItem(nil), s.dashboard.Items...)
	return &d
}

// SetLibraries replaces the library list.
func (s *Session) SetLibraries(libs []*listing.Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries = libs
}

// Libraries returns the library list.
func (s *Session) Libraries() []*listing.Library {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*listing.Library, len(s.libraries))
	copy(out, s.libraries)
	return out
}

// Library returns the library with the given id, or nil.
func (s *Session) Library(id string) *listing.Library {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lib := range s.libraries {
		if lib.ID() == id {
			return lib
		}
	}
	return nil
}

// SetStorageNodes replaces the storage node list.
func (s *Session) SetStorageNodes(nodes []models.StorageNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageNodes = nodes
}

// StorageNodes returns a copy of the storage node list.
func (s *Session) StorageNodes() []models.StorageNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.StorageNode, len(s.storageNodes))
	copy(out, s.storageNodes)
	return out
}
