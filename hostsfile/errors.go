package hostsfile

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidRecord is returned by Add for entries that are not address
// records or carry no names.
var ErrInvalidRecord = errors.New("entry is not an address record with at least one name")

// ErrKindMismatch is returned by Add when an entry's Kind contradicts its
// address literal.
var ErrKindMismatch = errors.New("address kind does not match the address")

// UnreadableError reports a hosts source that could not be read. The
// in-memory collection is left as it was.
type UnreadableError struct {
	Location string
	Err      error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("cannot read: %s: %v", e.Location, e.Err)
}

func (e *UnreadableError) Unwrap() error { return e.Err }
