package log

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
)

// Flaw attaches err to the event. Flaw errors are expanded into their records, joined errors
// and stack traces; any other error is attached as a plain error field.
func Flaw(err error) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		flawErr := new(flaw.Flaw)
		if !errors.As(err, &flawErr) {
			e.Err(err)
			return
		}

		e.Dict("error", errorDict(flawErr.Inner, flawErr.InnerType, flawErr.InnerSyntaxRepr))

		records := zerolog.Arr()
		for _, v := range flawErr.Records {
			records.Dict(zerolog.Dict().Str("function", v.Function).Func(payload(v.Payload)))
		}
		e.Array("records", records)

		joined := zerolog.Arr()
		for _, v := range flawErr.JoinedErrors {
			d := zerolog.Dict().Dict("error", errorDict(v.Message, v.TypeName, v.SyntaxRepr))
			if st := v.CallerStackTrace; nil != st {
				d.Dict("caller_stack_trace", location(st.File, st.Line, st.Function))
			} else {
				d.Stringer("caller_stack_trace", nil)
			}
			joined.Dict(d)
		}
		e.Array("joined_errors", joined)

		stackTraces := zerolog.Arr()
		for _, v := range flawErr.StackTrace {
			stackTraces.Dict(location(v.File, v.Line, v.Function))
		}
		e.Array("stack_traces", stackTraces)
	}
}

func payload(p map[string]any) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		b, err := json.MarshalWithOption(p, json.UnorderedMap(), json.DisableNormalizeUTF8(), json.DisableHTMLEscape())
		if nil != err {
			e.Dict("payload", zerolog.Dict().Str("error", err.Error()).Str("raw", fmt.Sprintf("%#+v", p)))
			return
		}
		e.RawJSON("payload", b)
	}
}

func errorDict(msg, typeName, repr string) *zerolog.Event {
	return zerolog.Dict().Str("message", msg).Str("type_name", typeName).Str("syntax_representation", repr)
}

func location(file string, line int, function string) *zerolog.Event {
	return zerolog.Dict().Str("location", fmt.Sprintf("%s:%d", file, line)).Str("function", function)
}
