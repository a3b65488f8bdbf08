package correlation

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateID = errors.New("request id already pending")
	ErrReservedID  = errors.New("request id is reserved")
)

// RemoteError is how a failure response surfaces to the caller. Data is the
// failure payload the peer sent.
type RemoteError struct {
	Channel string
	Data    any
}

func (e *RemoteError) Error() string {
	switch data := e.Data.(type) {
	case nil:
		return fmt.Sprintf("request on %s failed", e.Channel)
	case string:
		return fmt.Sprintf("request on %s failed: %s", e.Channel, data)
	default:
		return fmt.Sprintf("request on %s failed: %v", e.Channel, data)
	}
}
