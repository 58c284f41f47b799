package errutil

import (
	"context"
	"errors"
	"net"
	"os"
)

// IsContext reports whether ctx itself has ended, as opposed to an error that merely wraps a
// context error produced by a child deadline.
func IsContext(ctx context.Context) bool {
	err := ctx.Err()
	return nil != err && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// IsTimeout reports whether err was caused by an expired deadline, either of a context or of a
// network operation.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
