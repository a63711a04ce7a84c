package algorand

import (
	"errors"
	"fmt"
)

// ErrInvalidPageRequest is returned when a PageRequest sets both a cursor and a minimum round.
var ErrInvalidPageRequest = errors.New("page request cannot set both cursor and min round")

// TransportError reports that the indexer was unreachable or rejected the request.
type TransportError struct {
	Account string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("indexer %s failed for account %s: %v", e.Op, e.Account, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports annotation bytes that are present but not valid text.
// It never leaves this package's callers: NoteText logs it and yields nil.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode note: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
