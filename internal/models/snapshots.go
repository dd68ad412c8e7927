package models

import "time"

// HeartbeatSnapshot is the result of one /user/heartbeat?action=access
// round trip. The counters are used to decide whether a full
// account-info refresh is worth running.
type HeartbeatSnapshot struct {
	RequestTime       time.Time
	UserUpdateTime    int64
	InviteCount       int
	InviteUpdateTime  int64
	MessageCount      int
	MessageUpdateTime int64
}

// AccountInfoSnapshot is the result of one /user/heartbeat?action=info
// round trip, optionally enriched from /user/space and /user/profile.
type AccountInfoSnapshot struct {
	RequestTime       time.Time
	Email             string
	Nickname          string
	Avatar            string
	UserUpdateTime    int64
	InviteCount       int
	InviteUpdateTime  int64
	MessageCount      int
	MessageUpdateTime int64
	SpaceUsed         int64
	SpaceTotal        int64
}

// Drifted reports whether hb indicates server-side state newer than this
// account-info snapshot. Any of: account info predates the heartbeat's
// request time, user update-time advanced, invite counters changed, or
// message counters changed.
func (a *AccountInfoSnapshot) Drifted(hb *HeartbeatSnapshot) bool {
	if hb == nil {
		return false
	}
	if a == nil {
		return true
	}
	if a.RequestTime.Before(hb.RequestTime) {
		return true
	}
	if hb.UserUpdateTime > a.UserUpdateTime {
		return true
	}
	if hb.InviteCount != a.InviteCount || hb.InviteUpdateTime != a.InviteUpdateTime {
		return true
	}
	if hb.MessageCount != a.MessageCount || hb.MessageUpdateTime != a.MessageUpdateTime {
		return true
	}
	return false
}

// DashboardItem is one entry on the account dashboard.
type DashboardItem struct {
	ID         string
	Name       string
	Kind       string
	UpdateTime int64
}

// DashboardSnapshot is the result of one /datum/dashboard round trip.
type DashboardSnapshot struct {
	RequestTime time.Time
	Items       []DashboardItem
}

// StorageNode describes one storage backend attached to the account.
type StorageNode struct {
	ID         string
	Name       string
	Kind       string
	TotalBytes int64
	FreeBytes  int64
	Status     string
}
