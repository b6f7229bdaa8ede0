package types

import "time"

// Credentials are exchanged for a session token.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is an opaque bearer credential together with its issuing metadata.
type Token struct {
	User    int64     `json:"user"`
	Token   string    `json:"token"`
	Created time.Time `json:"created"`
}

// Valid reports whether the token carries a usable credential string.
func (t Token) Valid() bool {
	return t.Token != ""
}
