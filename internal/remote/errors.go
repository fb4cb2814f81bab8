package remote

import (
	"errors"
	"fmt"
)

// ErrNetwork indicates a transient transport failure (timeout, connection
// refused, 5xx). Always retryable: the row stays pending and the next sync
// run tries again.
var ErrNetwork = errors.New("remote: network failure")

// RejectedError reports the remote store refusing an operation.
// Permanent rejections (structurally invalid documents) will repeat on every
// retry and must not be retried forever.
type RejectedError struct {
	Op        string // "create", "merge", "delete"
	Reason    string
	Permanent bool
	Status    int // HTTP status when the rejection came off the wire, else 0
}

func (e *RejectedError) Error() string {
	kind := "retryable"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("remote: %s rejected (%s): %s", e.Op, kind, e.Reason)
}

// IsPermanent reports whether err is a rejection that will always repeat.
func IsPermanent(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Permanent
}
