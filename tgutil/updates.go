package tgutil

import (
	"github.com/gotd/td/tg"
)

// SentMessageID extracts the id of the message created by a send request from its result.
func SentMessageID(u tg.UpdatesClass) (int, bool) {
	var list []tg.UpdateClass
	switch u := u.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID, true
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	default:
		return 0, false
	}

	for _, upd := range list {
		switch upd := upd.(type) {
		case *tg.UpdateMessageID:
			return upd.ID, true
		case *tg.UpdateNewMessage:
			return upd.Message.GetID(), true
		case *tg.UpdateNewChannelMessage:
			return upd.Message.GetID(), true
		}
	}
	return 0, false
}
