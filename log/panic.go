package log

import (
	"bytes"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Panic records a recovered value along with the stack of the goroutine that recovered it.
// The first frames belong to the runtime and the deferred recover call and are dropped.
func Panic(thing any) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		lines := bytes.Split(debug.Stack(), []byte("\n"))
		if len(lines) > 9 {
			lines = lines[9:]
		}
		e.Dict(
			"panic",
			zerolog.Dict().
				Any("content", thing).
				Bytes("stack_traces", bytes.Join(lines, []byte("\n"))),
		)
	}
}
