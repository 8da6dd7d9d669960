package types

// Role is the group a user belongs to, resolved once at connect time and
// cached on the connection for the session.
type Role string

const (
	RoleRider   Role = "rider"
	RoleDriver  Role = "driver"
	RoleUnknown Role = ""
)

// User is the identity behind a connection.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
