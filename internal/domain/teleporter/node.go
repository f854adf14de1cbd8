package teleporter

import "net/url"

// Role distinguishes the node records are read from and the nodes they are written to.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// PrimaryNodeName is the name reported for the primary in every SyncResult.
const PrimaryNodeName = "primary"

// Node identifies one Pi-hole instance and the secret used to log in to it.
type Node struct {
	Name     string   `json:"name"`
	BaseURL  *url.URL `json:"base_url"`
	Password string   `json:"-"` // Never expose in JSON
	Role     Role     `json:"role"`
}

// Endpoint resolves an API path against the node's base URL, keeping any
// path prefix the base URL already carries.
func (n Node) Endpoint(segments ...string) string {
	return n.BaseURL.JoinPath(segments...).String()
}
