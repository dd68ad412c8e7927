package models

import "fmt"

// HostStatus values reported by cluster discovery.
const (
	HostStatusOK      = "ok"
	HostStatusOffline = "offline"
)

// HostRecord describes one host in a cluster. Identity is
// (ClusterID, HostKey); the network-reachability fields are volatile and
// are overwritten by cluster discovery when a newer topology arrives.
type HostRecord struct {
	ClusterID     string `json:"cluster_id"`
	ClusterDomain string `json:"cluster_domain"`
	HostKey       string `json:"host_key"`
	HostName      string `json:"host_name"`
	HostAddr      string `json:"host_addr"`
	LanAddr       string `json:"lan_addr"`
	Domain        string `json:"domain"`
	HTTPPort      int    `json:"http_port"`
	HTTPSPort     int    `json:"https_port"`
	Status        string `json:"status"`
	Heartbeat     int64  `json:"heartbeat"`
}

// SameIdentity reports whether two records describe the same host.
func (h *HostRecord) SameIdentity(other *HostRecord) bool {
	return h.ClusterID == other.ClusterID && h.HostKey == other.HostKey
}

// MergeVolatile copies the network-reachability fields from src.
// Identity fields (ClusterID, HostKey) are never touched here.
func (h *HostRecord) MergeVolatile(src *HostRecord) {
	h.HostAddr = src.HostAddr
	h.LanAddr = src.LanAddr
	h.Domain = src.Domain
	h.HTTPPort = src.HTTPPort
	h.HTTPSPort = src.HTTPSPort
	h.Status = src.Status
	h.Heartbeat = src.Heartbeat
}

// BaseURL returns the http address requests should target.
func (h *HostRecord) BaseURL() string {
	if h.HostAddr == "" {
		return ""
	}
	if h.HTTPPort > 0 {
		return fmt.Sprintf("http://%s:%d", h.HostAddr, h.HTTPPort)
	}
	return "http://" + h.HostAddr
}
