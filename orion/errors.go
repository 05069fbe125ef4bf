package orion

import (
	"errors"
	"fmt"
)

// ErrEntityNotFound is returned by UpdateAttributes when the broker does
// not know the entity (HTTP 404).
var ErrEntityNotFound = errors.New("orion: entity not found")

// BrokerError is any unexpected broker reply.
type BrokerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("orion: %s request returned with code %d: %s", e.Op, e.StatusCode, e.Body)
}
