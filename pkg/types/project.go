package types

import "time"

// Project is a named, per-user container for a set of tables. Names are
// unique per owner.
type Project struct {
	Owner   int64     `json:"owner"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}
