package tgutil

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/cache"
	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/subscription"
)

// MembershipQuerier answers membership questions through channels.getParticipant, which works
// for broadcast channels and supergroups the bot administers.
type MembershipQuerier struct {
	api    *tg.Client
	sender *message.Sender
	peers  *cache.PeerCache
	chats  map[subscription.Scope]string
}

func NewMembershipQuerier(api *tg.Client, sender *message.Sender, peers *cache.PeerCache, channel, group string) *MembershipQuerier {
	return &MembershipQuerier{
		api:    api,
		sender: sender,
		peers:  peers,
		chats: map[subscription.Scope]string{
			subscription.ScopeChannel: channel,
			subscription.ScopeGroup:   group,
		},
	}
}

func (q *MembershipQuerier) Status(ctx context.Context, scope subscription.Scope, userID int64) (subscription.Status, error) {
	ref, ok := q.chats[scope]
	if !ok {
		panic(fmt.Sprintf("unexpected membership scope %s", scope))
	}
	flawP := flaw.P{"scope": scope.String(), "chat": ref, "user_id": userID}

	peer, err := ResolvePeer(ctx, q.sender, q.peers, ref)
	if nil != err {
		return "", err
	}
	channel, ok := peer.(*tg.InputPeerChannel)
	if !ok {
		return "", flaw.From(fmt.Errorf("chat %q is neither a channel nor a supergroup", ref)).Append(flawP)
	}

	var participant tg.InputPeerClass = &tg.InputPeerUser{UserID: userID, AccessHash: 0}
	if u, ok := q.peers.User(userID); ok {
		participant = u
	}

	res, err := q.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
		Participant: participant,
	})
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", ctx.Err()
		case tgerr.Is(err, "USER_NOT_PARTICIPANT"):
			return subscription.StatusLeft, nil
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return "", flaw.From(fmt.Errorf("failed to get chat member: %v", err)).Append(flawP)
		}
	}
	return ParticipantStatus(res.Participant), nil
}

// ParticipantStatus maps a participant to the status the Bot API would report for it.
func ParticipantStatus(p tg.ChannelParticipantClass) subscription.Status {
	switch p := p.(type) {
	case *tg.ChannelParticipantCreator:
		return subscription.StatusCreator
	case *tg.ChannelParticipantAdmin:
		return subscription.StatusAdministrator
	case *tg.ChannelParticipant, *tg.ChannelParticipantSelf:
		return subscription.StatusMember
	case *tg.ChannelParticipantBanned:
		switch {
		case p.BannedRights.ViewMessages:
			return subscription.StatusKicked
		case p.Left:
			return subscription.StatusLeft
		default:
			return subscription.StatusRestricted
		}
	default:
		return subscription.StatusLeft
	}
}
