package errutil

import (
	"fmt"
)

// UnknownError formats the panic message for an error that fits none of the handled kinds.
func UnknownError(err error) string {
	return fmt.Sprintf("unexpected error of type %T: %v", err, err)
}
