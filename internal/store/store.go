// Package store persists accounts and hosts between runs. The engine
// only depends on the Store interface; the file-backed implementation is
// what the CLI uses, the in-memory one backs tests.
package store

import (
	"github.com/datumcloud/datum-sync/internal/models"
)

// Store is the persistence contract for credentials and host records.
// Implementations must be safe for concurrent use: cluster discovery
// merges host records while session jobs read and update credentials.
type Store interface {
	// Credentials returns all stored credentials.
	Credentials() ([]models.Credential, error)

	// CredentialByUserKey returns the credential for a user key.
	CredentialByUserKey(userKey string) (models.Credential, bool, error)

	// UpsertCredential inserts or replaces a credential keyed by UserKey.
	UpsertCredential(cred models.Credential) error

	// Hosts returns all stored host records.
	Hosts() ([]models.HostRecord, error)

	// Host returns the record for (clusterID, hostKey).
	Host(clusterID, hostKey string) (models.HostRecord, bool, error)

	// UpsertHost inserts or replaces a host record keyed by
	// (ClusterID, HostKey).
	UpsertHost(host models.HostRecord) error

	// ClusterIDs returns the distinct cluster ids present in the host
	// records.
	ClusterIDs() ([]string, error)
}

func hostKeyOf(h *models.HostRecord) string {
	return h.ClusterID + "/" + h.HostKey
}
