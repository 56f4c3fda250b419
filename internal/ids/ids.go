package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique id for accounts, venues and photos.
func New() string {
	return ksuid.New().String()
}
