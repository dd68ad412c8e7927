package models

import "time"

// Credential status values. A credential is never deleted on failure;
// it stays selectable for a manual retry with its failure recorded.
const (
	CredentialStatusLogin  = "login"
	CredentialStatusLogout = "logout"
	CredentialStatusError  = "error"
)

// Credential is the persisted identity of one account on one cluster.
// The key fields are created at login/register and re-used verbatim for
// silent re-authentication; they are never regenerated client-side.
type Credential struct {
	UserKey   string `json:"user_key"`
	ClientKey string `json:"client_key"`
	DeviceKey string `json:"device_key"`
	AuthKey   string `json:"auth_key"`
	Token     string `json:"token"`

	Email    string `json:"email"`
	Nickname string `json:"nickname"`

	ClusterID string `json:"cluster_id"`
	HostKey   string `json:"host_key"`

	Status        string    `json:"status"`
	FailedCode    int       `json:"failed_code,omitempty"`
	FailedMessage string    `json:"failed_message,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Complete reports whether the credential has everything silent
// re-authentication needs.
func (c *Credential) Complete() bool {
	return c.AuthKey != "" && c.DeviceKey != "" && c.ClientKey != ""
}

// MarkError records a server-side auth failure.
func (c *Credential) MarkError(code int, message string) {
	c.Status = CredentialStatusError
	c.FailedCode = code
	c.FailedMessage = message
	c.UpdatedAt = time.Now()
}

// MarkLogin records a successful authentication and clears any prior
// failure.
func (c *Credential) MarkLogin() {
	c.Status = CredentialStatusLogin
	c.FailedCode = 0
	c.FailedMessage = ""
	c.UpdatedAt = time.Now()
}

// MarkLogout records a clean logout.
func (c *Credential) MarkLogout() {
	c.Status = CredentialStatusLogout
	c.FailedCode = 0
	c.FailedMessage = ""
	c.UpdatedAt = time.Now()
}
