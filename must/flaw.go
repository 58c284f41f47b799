package must

import (
	"errors"
	"fmt"

	"github.com/xeptore/flaw/v8"
)

// BeFlaw returns the flaw wrapped by err. Callers must have already checked errutil.IsFlaw.
func BeFlaw(err error) *flaw.Flaw {
	f := new(flaw.Flaw)
	if !errors.As(err, &f) {
		panic(fmt.Sprintf("error of type %T is not a flaw: %v", err, err))
	}
	return f
}
