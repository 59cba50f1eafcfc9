package model

import "time"

// Role separates app users from barangay/municipal responders.
type Role string

const (
	RoleUser      Role = "user"
	RoleResponder Role = "responder"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleResponder
}

// AccountType is the responder account kind.
type AccountType string

const (
	AccountAdmin    AccountType = "ADMIN"
	AccountBarangay AccountType = "BARANGAY"
	AccountPOSO     AccountType = "POSO"
)

// Identity is a user or responder as seen by the messaging layer.
// Accounts are owned by the auth subsystem; this service only reads them.
type Identity struct {
	ID          string      `json:"id" yaml:"id"`
	DisplayName string      `json:"name" yaml:"name"`
	Role        Role        `json:"role" yaml:"role"`
	AccountType AccountType `json:"accountType,omitempty" yaml:"account_type"`
	Email       string      `json:"email,omitempty" yaml:"email"`
	Avatar      string      `json:"avatar,omitempty" yaml:"avatar"`
	Approved    bool        `json:"approved" yaml:"approved"`
	CreatedAt   time.Time   `json:"createdAt" yaml:"-"`
}

// IsAdmin reports whether the identity is an approved admin responder.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleResponder && i.AccountType == AccountAdmin && i.Approved
}
