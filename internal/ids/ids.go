// Package ids mints identifiers for event records and requests. ULIDs are
// used because the event log lists newest-first: lexicographic order is
// arrival order, so the ids double as a secondary sort key.
package ids

import "github.com/oklog/ulid/v2"

// New returns a fresh ULID string.
func New() string {
	return ulid.Make().String()
}
