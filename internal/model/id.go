// Package model holds the journal records shared by the store and the
// status API.
package model

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID. IDs sort by creation time, so run listings can
// order by ID.
func NewID() string {
	return ulid.Make().String()
}
