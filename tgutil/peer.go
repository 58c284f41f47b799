package tgutil

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/cache"
	"github.com/xeptore/teradl/errutil"
)

// channelIDOffset is added to channel ids in their Bot API form, e.g. -1001234567890.
const channelIDOffset = 1_000_000_000_000

// BotAPIID returns the chat id of p the way the Bot API and the config file write it.
func BotAPIID(p tg.PeerClass) int64 {
	switch p := p.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return -p.ChatID
	case *tg.PeerChannel:
		return -channelIDOffset - p.ChannelID
	default:
		return 0
	}
}

// FromBotAPIID splits a Bot API chat id into the peer kind and the MTProto id.
func FromBotAPIID(id int64) (cache.PeerKind, int64) {
	switch {
	case id > 0:
		return cache.PeerUser, id
	case id < -channelIDOffset:
		return cache.PeerChannel, -id - channelIDOffset
	default:
		return cache.PeerChat, -id
	}
}

func IsPrivate(p tg.PeerClass) bool {
	_, ok := p.(*tg.PeerUser)
	return ok
}

func InputPeer(p tg.PeerClass, peers *cache.PeerCache) (tg.InputPeerClass, bool) {
	switch p := p.(type) {
	case *tg.PeerUser:
		return peers.Get(cache.PeerUser, p.UserID)
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerChannel:
		return peers.Get(cache.PeerChannel, p.ChannelID)
	default:
		return nil, false
	}
}

// ResolvePeer turns a configured chat reference into an addressable peer. Usernames and t.me
// links are resolved through the API. Numeric Bot API ids only work for chats the bot has
// already received an update from.
func ResolvePeer(ctx context.Context, sender *message.Sender, peers *cache.PeerCache, ref string) (tg.InputPeerClass, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); nil == err {
		kind, rawID := FromBotAPIID(id)
		if kind == cache.PeerChat {
			return &tg.InputPeerChat{ChatID: rawID}, nil
		}
		if p, ok := peers.Get(kind, rawID); ok {
			return p, nil
		}
		return nil, flaw.From(fmt.Errorf("%s %d has not been seen yet", kind, rawID)).Append(flaw.P{"ref": ref})
	}

	return peers.ResolveUsername(ref, func() (tg.InputPeerClass, error) {
		p, err := sender.Resolve(ref).AsInputPeer(ctx)
		if nil != err {
			if errutil.IsContext(ctx) {
				return nil, ctx.Err()
			}
			flawP := flaw.P{"ref": ref, "err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to resolve peer: %v", err)).Append(flawP)
		}
		return p, nil
	})
}
