// Package callback encodes the actions carried by inline keyboard buttons.
package callback

import (
	"errors"
	"strconv"
	"strings"
)

var ErrUnknownPayload = errors.New("unknown callback payload")

type Kind int

const (
	// KindCheck asks for the subscription gate to be evaluated again.
	KindCheck Kind = iota + 1
	// KindRelay asks for the user's pending link to be relayed into the chat.
	KindRelay
)

func (k Kind) prefix() string {
	switch k {
	case KindCheck:
		return "check_"
	case KindRelay:
		return "tg_"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// Action is a button press, bound to the user the button was issued for.
type Action struct {
	Kind   Kind
	UserID int64
}

func Encode(a Action) []byte {
	prefix := a.Kind.prefix()
	if prefix == "" {
		panic("unsupported callback kind: " + strconv.Itoa(int(a.Kind)))
	}
	return []byte(prefix + strconv.FormatInt(a.UserID, 10))
}

func Decode(data []byte) (Action, error) {
	s := string(data)
	for _, kind := range []Kind{KindCheck, KindRelay} {
		rest, ok := strings.CutPrefix(s, kind.prefix())
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if nil != err || id <= 0 {
			return Action{}, ErrUnknownPayload
		}
		return Action{Kind: kind, UserID: id}, nil
	}
	return Action{}, ErrUnknownPayload
}
