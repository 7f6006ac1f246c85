package domain

import "time"

type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Session identifies the caller of an operation. It is resolved from a bearer
// token at the transport boundary and passed down explicitly.
type Session struct {
	ActorID   string
	ActorName string
	ShopID    string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

func (s Session) IsOwner() bool { return s.Role == RoleOwner }
