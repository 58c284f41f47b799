package tgutil

import (
	"github.com/gotd/td/tg"

	"github.com/xeptore/teradl/callback"
	"github.com/xeptore/teradl/subscription"
)

func urlButton(text, url string) tg.KeyboardButtonRow {
	return tg.KeyboardButtonRow{Buttons: []tg.KeyboardButtonClass{&tg.KeyboardButtonURL{Text: text, URL: url}}}
}

func callbackButton(text string, a callback.Action) tg.KeyboardButtonRow {
	//nolint:exhaustruct
	return tg.KeyboardButtonRow{Buttons: []tg.KeyboardButtonClass{&tg.KeyboardButtonCallback{Text: text, Data: callback.Encode(a)}}}
}

// JoinKeyboard offers a join button for every chat in failing, followed by the recheck button
// bound to userID.
func JoinKeyboard(failing subscription.Scope, channelURL, groupURL string, userID int64) *tg.ReplyInlineMarkup {
	rows := make([]tg.KeyboardButtonRow, 0, 3)
	if failing.Includes(subscription.ScopeChannel) {
		rows = append(rows, urlButton("📢 Join Channel", channelURL))
	}
	if failing.Includes(subscription.ScopeGroup) {
		rows = append(rows, urlButton("👥 Join Group", groupURL))
	}
	rows = append(rows, callbackButton("✅ I Have Joined", callback.Action{Kind: callback.KindCheck, UserID: userID}))
	return &tg.ReplyInlineMarkup{Rows: rows}
}

// ChoiceKeyboard always links the direct download and adds the relay button bound to userID
// when withRelay is set.
func ChoiceKeyboard(directURL string, userID int64, withRelay bool) *tg.ReplyInlineMarkup {
	rows := []tg.KeyboardButtonRow{urlButton("📥 DIRECT DOWNLOAD", directURL)}
	if withRelay {
		rows = append(rows, callbackButton("📲 TELEGRAM DOWNLOAD", callback.Action{Kind: callback.KindRelay, UserID: userID}))
	}
	return &tg.ReplyInlineMarkup{Rows: rows}
}
