package gateway

import "fmt"

// Endpoint paths consumed by the sync engine.
const (
	PathUserLogin     = "/user/login"
	PathUserHeartbeat = "/user/heartbeat"
	PathUserSpace     = "/user/space"
	PathUserProfile   = "/user/profile"
	PathUserCluster   = "/user/cluster"
	PathDashboard     = "/datum/dashboard"
	PathSection       = "/datum/section"
	PathSectionInfo   = "/datum/sectioninfo"
)

// Actions on /user/login.
const (
	ActionLogin         = "login"
	ActionRegisterLogin = "registerlogin"
	ActionAuthLogin     = "authlogin"
	ActionLogout        = "logout"
)

// Actions on /user/heartbeat.
const (
	ActionAccess = "access"
	ActionInfo   = "info"
)

// ActionGet is the single action on /user/cluster.
const ActionGet = "get"

// PathFile returns the raw content path for a section id.
func PathFile(id string) string {
	return fmt.Sprintf("/datum/file/%s", id)
}

// PathImage returns the sized-image path for a section id.
func PathImage(id string, size int, ext string) string {
	return fmt.Sprintf("/datum/image/%s_%d.%s", id, size, ext)
}
