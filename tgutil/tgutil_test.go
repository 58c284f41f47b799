package tgutil_test

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/teradl/cache"
	"github.com/xeptore/teradl/callback"
	"github.com/xeptore/teradl/subscription"
	"github.com/xeptore/teradl/tgutil"
)

func TestBotAPIID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		peer   tg.PeerClass
		id     int64
		kind   cache.PeerKind
		native int64
	}{
		{name: "User", peer: &tg.PeerUser{UserID: 42}, id: 42, kind: cache.PeerUser, native: 42},
		{name: "Chat", peer: &tg.PeerChat{ChatID: 123}, id: -123, kind: cache.PeerChat, native: 123},
		{name: "Channel", peer: &tg.PeerChannel{ChannelID: 3284051384}, id: -1003284051384, kind: cache.PeerChannel, native: 3284051384},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.id, tgutil.BotAPIID(tc.peer))
			kind, native := tgutil.FromBotAPIID(tc.id)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.native, native)
		})
	}
}

func TestIsPrivate(t *testing.T) {
	t.Parallel()

	assert.True(t, tgutil.IsPrivate(&tg.PeerUser{UserID: 1}))
	assert.False(t, tgutil.IsPrivate(&tg.PeerChannel{ChannelID: 1}))
	assert.False(t, tgutil.IsPrivate(&tg.PeerChat{ChatID: 1}))
}

func TestInputPeer(t *testing.T) {
	t.Parallel()

	peers := cache.NewPeerCache(cache.DefaultPeerTTL)
	t.Cleanup(peers.Stop)
	peers.Remember(tg.Entities{Channels: map[int64]*tg.Channel{5: {ID: 5, AccessHash: 55}}})

	p, ok := tgutil.InputPeer(&tg.PeerChannel{ChannelID: 5}, peers)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 5, AccessHash: 55}, p)

	p, ok = tgutil.InputPeer(&tg.PeerChat{ChatID: 8}, peers)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChat{ChatID: 8}, p)

	_, ok = tgutil.InputPeer(&tg.PeerUser{UserID: 9}, peers)
	assert.False(t, ok)
}

func buttons(t *testing.T, kb *tg.ReplyInlineMarkup) []tg.KeyboardButtonClass {
	t.Helper()
	out := make([]tg.KeyboardButtonClass, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		require.Len(t, row.Buttons, 1)
		out = append(out, row.Buttons[0])
	}
	return out
}

func TestJoinKeyboard(t *testing.T) {
	t.Parallel()

	const (
		channelURL = "https://t.me/NetFusionTG"
		groupURL   = "https://t.me/YourNetFusion"
	)
	check := &tg.KeyboardButtonCallback{Text: "✅ I Have Joined", Data: []byte("check_42")} //nolint:exhaustruct

	t.Run("Channel", func(t *testing.T) {
		t.Parallel()

		kb := tgutil.JoinKeyboard(subscription.ScopeChannel, channelURL, groupURL, 42)
		assert.Equal(t, []tg.KeyboardButtonClass{
			&tg.KeyboardButtonURL{Text: "📢 Join Channel", URL: channelURL},
			check,
		}, buttons(t, kb))
	})

	t.Run("Group", func(t *testing.T) {
		t.Parallel()

		kb := tgutil.JoinKeyboard(subscription.ScopeGroup, channelURL, groupURL, 42)
		assert.Equal(t, []tg.KeyboardButtonClass{
			&tg.KeyboardButtonURL{Text: "👥 Join Group", URL: groupURL},
			check,
		}, buttons(t, kb))
	})

	t.Run("Both", func(t *testing.T) {
		t.Parallel()

		kb := tgutil.JoinKeyboard(subscription.ScopeBoth, channelURL, groupURL, 42)
		assert.Len(t, kb.Rows, 3)
	})
}

func TestChoiceKeyboard(t *testing.T) {
	t.Parallel()

	kb := tgutil.ChoiceKeyboard("https://d.example.com/v.mp4", 7, true)
	got := buttons(t, kb)
	require.Len(t, got, 2)
	assert.Equal(t, &tg.KeyboardButtonURL{Text: "📥 DIRECT DOWNLOAD", URL: "https://d.example.com/v.mp4"}, got[0])

	relay, ok := got[1].(*tg.KeyboardButtonCallback)
	require.True(t, ok)
	action, err := callback.Decode(relay.Data)
	require.NoError(t, err)
	assert.Equal(t, callback.Action{Kind: callback.KindRelay, UserID: 7}, action)

	kb = tgutil.ChoiceKeyboard("https://d.example.com/v.mp4", 7, false)
	assert.Len(t, kb.Rows, 1)
}

func TestParticipantStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		participant tg.ChannelParticipantClass
		expected    subscription.Status
	}{
		{name: "Creator", participant: &tg.ChannelParticipantCreator{}, expected: subscription.StatusCreator},
		{name: "Admin", participant: &tg.ChannelParticipantAdmin{}, expected: subscription.StatusAdministrator},
		{name: "Member", participant: &tg.ChannelParticipant{}, expected: subscription.StatusMember},
		{name: "Self", participant: &tg.ChannelParticipantSelf{}, expected: subscription.StatusMember},
		{name: "Left", participant: &tg.ChannelParticipantLeft{}, expected: subscription.StatusLeft},
		{
			name:        "Kicked",
			participant: &tg.ChannelParticipantBanned{BannedRights: tg.ChatBannedRights{ViewMessages: true}}, //nolint:exhaustruct
			expected:    subscription.StatusKicked,
		},
		{
			name:        "RestrictedAndLeft",
			participant: &tg.ChannelParticipantBanned{Left: true}, //nolint:exhaustruct
			expected:    subscription.StatusLeft,
		},
		{
			name:        "Restricted",
			participant: &tg.ChannelParticipantBanned{BannedRights: tg.ChatBannedRights{SendMedia: true}}, //nolint:exhaustruct
			expected:    subscription.StatusRestricted,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status := tgutil.ParticipantStatus(tc.participant)
			assert.Equal(t, tc.expected, status)
			assert.Equal(t, tc.expected != subscription.StatusLeft && tc.expected != subscription.StatusKicked, status.Subscribed())
		})
	}
}

func TestSentMessageID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		updates  tg.UpdatesClass
		expected int
		ok       bool
	}{
		{
			name:     "ShortSent",
			updates:  &tg.UpdateShortSentMessage{ID: 10}, //nolint:exhaustruct
			expected: 10,
			ok:       true,
		},
		{
			name: "MessageID",
			updates: &tg.Updates{Updates: []tg.UpdateClass{ //nolint:exhaustruct
				&tg.UpdateMessageID{ID: 11, RandomID: 1},
				&tg.UpdateNewMessage{Message: &tg.Message{ID: 11}}, //nolint:exhaustruct
			}},
			expected: 11,
			ok:       true,
		},
		{
			name: "ChannelMessage",
			updates: &tg.Updates{Updates: []tg.UpdateClass{ //nolint:exhaustruct
				&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 12}}, //nolint:exhaustruct
			}},
			expected: 12,
			ok:       true,
		},
		{
			name:    "Empty",
			updates: &tg.UpdatesTooLong{},
			ok:      false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			id, ok := tgutil.SentMessageID(tc.updates)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, id)
		})
	}
}
