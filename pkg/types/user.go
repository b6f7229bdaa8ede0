package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Access is the privilege level of a user.
type Access string

// Access levels known to the backend.
const (
	AccessUser  Access = "User"
	AccessAdmin Access = "Admin"
)

// ParseAccess returns the Access named by s. Matching ignores case so that
// "admin" on the command line selects AccessAdmin.
func ParseAccess(s string) (Access, error) {
	switch {
	case strings.EqualFold(s, string(AccessUser)):
		return AccessUser, nil
	case strings.EqualFold(s, string(AccessAdmin)):
		return AccessAdmin, nil
	}
	return "", fmt.Errorf("unknown access level %q (valid: User, Admin)", s)
}

// UnmarshalJSON rejects access levels the client does not know.
func (a *Access) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAccess(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// User is an account on the backend.
type User struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Access Access `json:"access"`
}

// IsAdmin reports whether the user may manage other users.
func (u User) IsAdmin() bool {
	return u.Access == AccessAdmin
}

// NewUser is the request body for creating a user.
type NewUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Access   Access `json:"access"`
}
