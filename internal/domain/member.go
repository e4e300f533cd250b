package domain

import "time"

// Role is a member's authorization role.
type Role string

const (
	// RoleMember can submit payments and view their own records.
	RoleMember Role = "member"
	// RoleTreasurer can validate or reject pending payments and run reports.
	RoleTreasurer Role = "treasurer"
	// RolePastor has read access to all payments and reports.
	RolePastor Role = "pastor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleTreasurer || r == RolePastor
}

// Member is a registered church member. Credential issuance lives outside
// this service; APIToken is the opaque credential the HTTP layer resolves
// to a principal.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`

	APIToken  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
