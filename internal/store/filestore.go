package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/datumcloud/datum-sync/internal/models"
)

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Version     string                       `json:"version"`
	Credentials map[string]models.Credential `json:"credentials"`
	Hosts       map[string]models.HostRecord `json:"hosts"`
}

// FileStore persists credentials and hosts in one JSON file. Every
// mutation is written through immediately; the file is small and the
// mutation rate is a handful per session.
type FileStore struct {
	mu       sync.RWMutex
	state    fileState
	filePath string
}

// NewFileStore creates a file store backed by filePath. Call Load before
// first use.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{
		state: fileState{
			Version:     "1.0.0",
			Credentials: make(map[string]models.Credential),
			Hosts:       make(map[string]models.HostRecord),
		},
		filePath: filePath,
	}
}

// Load reads state from the file system. A missing file is a fresh
// store, not an error.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read account store: %w", err)
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return fmt.Errorf("failed to parse account store: %w", err)
	}

	if s.state.Credentials == nil {
		s.state.Credentials = make(map[string]models.Credential)
	}
	if s.state.Hosts == nil {
		s.state.Hosts = make(map[string]models.HostRecord)
	}
	return nil
}

// save writes the state file. Caller must hold the write lock.
func (s *FileStore) save() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal account store: %w", err)
	}

	// Write-then-rename so a crash never leaves a torn file.
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write account store: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace account store: %w", err)
	}
	return nil
}

// Credentials returns all stored credentials.
func (s *FileStore) Credentials() ([]models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]models.Credential, 0, len(s.state.Credentials))
	for _, c := range s.state.Credentials {
		creds = append(creds, c)
	}
	return creds, nil
}

// CredentialByUserKey returns the credential for a user key.
func (s *FileStore) CredentialByUserKey(userKey string) (models.Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.state.Credentials[userKey]
	return c, ok, nil
}

// UpsertCredential inserts or replaces a credential and writes through.
func (s *FileStore) UpsertCredential(cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Credentials[cred.UserKey] = cred
	return s.save()
}

// Hosts returns all stored host records.
func (s *FileStore) Hosts() ([]models.HostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]models.HostRecord, 0, len(s.state.Hosts))
	for _, h := range s.state.Hosts {
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// Host returns the record for (clusterID, hostKey).
func (s *FileStore) Host(clusterID, hostKey string) (models.HostRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.state.Hosts[clusterID+"/"+hostKey]
	return h, ok, nil
}

// UpsertHost inserts or replaces a host record and writes through.
func (s *FileStore) UpsertHost(host models.HostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Hosts[hostKeyOf(&host)] = host
	return s.save()
}

// ClusterIDs returns the distinct cluster ids present in the host records.
func (s *FileStore) ClusterIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, h := range s.state.Hosts {
		if h.ClusterID != "" && !seen[h.ClusterID] {
			seen[h.ClusterID] = true
			ids = append(ids, h.ClusterID)
		}
	}
	return ids, nil
}

// DefaultStorePath returns the default account store location,
// ~/.config/datum/accounts.json.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "datum", "accounts.json"), nil
}
