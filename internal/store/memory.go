package store

import (
	"sync"

	"github.com/datumcloud/datum-sync/internal/models"
)

// MemoryStore is an in-memory Store. Used by tests and by one-shot CLI
// invocations that never persist.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]models.Credential
	hosts       map[string]models.HostRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]models.Credential),
		hosts:       make(map[string]models.HostRecord),
	}
}

// Credentials returns all stored credentials.
func (s *MemoryStore) Credentials() ([]models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]models.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		creds = append(creds, c)
	}
	return creds, nil
}

// CredentialByUserKey returns the credential for a user key.
func (s *MemoryStore) CredentialByUserKey(userKey string) (models.Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userKey]
	return c, ok, nil
}

// UpsertCredential inserts or replaces a credential.
func (s *MemoryStore) UpsertCredential(cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[cred.UserKey] = cred
	return nil
}

// Hosts returns all stored host records.
func (s *MemoryStore) Hosts() ([]models.HostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]models.HostRecord, 0, len(s.hosts))
	for _, h := range s.hosts {
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// Host returns the record for (clusterID, hostKey).
func (s *MemoryStore) Host(clusterID, hostKey string) (models.HostRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hosts[clusterID+"/"+hostKey]
	return h, ok, nil
}

// UpsertHost inserts or replaces a host record.
func (s *MemoryStore) UpsertHost(host models.HostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hosts[hostKeyOf(&host)] = host
	return nil
}

// ClusterIDs returns the distinct cluster ids present in the host records.
func (s *MemoryStore) ClusterIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, h := range s.hosts {
		if h.ClusterID != "" && !seen[h.ClusterID] {
			seen[h.ClusterID] = true
			ids = append(ids, h.ClusterID)
		}
	}
	return ids, nil
}
