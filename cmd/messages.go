package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/records"
	"github.com/xeptore/teradl/relay"
	"github.com/xeptore/teradl/resolver"
)

const (
	textProcessing     = "🔍 Processing your Terabox link..."
	textSessionExpired = "⚠️ Session expired. Please generate link again."
	textDenied         = "❌ This bot only works in allowed groups"
	textNotForYouCheck = "This button is not for you!"
	textNotForYouRelay = "This download link is not for you!"
	textGennyUsage     = "📌 <b>Usage:</b> /genny &lt;terabox-link&gt;\n\nExample: /genny https://terabox.com/s/..."
	textNotFound       = "❌ Download link not found\n\n" +
		"🔍 <b>Possible reasons:</b>\n" +
		"1. Invalid link\n" +
		"2. File not accessible\n" +
		"3. Server busy\n\n" +
		"🔄 Try again after some time"
	textUploadTimeout = "❌ Upload timeout! Slow connection.\nTry Direct Download"
	textNoSpace       = "❌ Not enough disk space on the server right now.\nUse Direct Download"
	textTimedOut      = "❌ Download error: timed out\nTry Direct Download"

	genericErrorMaxRunes = 100
)

// texts renders every message the bot sends. All output is Telegram HTML and every value that
// comes from users or remote hosts is escaped.
type texts struct {
	credit     string
	channel    string
	group      string
	dmLimit    config.ByteSize
	groupLimit config.ByteSize
}

func newTexts(cfg *config.Config) texts {
	return texts{
		credit:     html.EscapeString(cfg.Credit),
		channel:    html.EscapeString(cfg.Subscription.Channel),
		group:      html.EscapeString(cfg.Subscription.Group),
		dmLimit:    cfg.Limits.DMMaxSize,
		groupLimit: cfg.Limits.GroupMaxSize,
	}
}

func (t texts) withCredit(s string) string {
	if t.credit == "" {
		return s
	}
	return s + "\n\n" + t.credit
}

func (t texts) welcomePrivate(firstName string) string {
	return fmt.Sprintf(
		"👋 Hello %s!\n\n"+
			"🤖 <b>Welcome to Terabox Downloader Bot</b>\n\n"+
			"%s"+
			"📌 <b>To use this bot:</b>\n"+
			"1. Join our channel: %s\n"+
			"2. Join our group: %s\n"+
			"3. Then send Terabox links directly here\n\n"+
			"📌 <b>In groups:</b> Use /genny &lt;terabox-link&gt;\n\n"+
			"🔗 Example: https://terabox.com/s/...",
		html.EscapeString(firstName),
		lo.Ternary(t.credit != "", t.credit+"\n\n", ""),
		t.channel,
		t.group,
	)
}

func (t texts) welcomeGroup() string {
	return t.withCredit("🤖 <b>Terabox Downloader Ready</b>\n\n📌 <b>Usage:</b> /genny &lt;terabox-link&gt;")
}

func (t texts) help() string {
	return t.withCredit(
		"🤖 <b>Terabox Downloader Bot Help</b>\n\n" +
			"📌 <b>Available Commands:</b>\n" +
			"/start - Start the bot\n" +
			"/genny &lt;link&gt; - Download terabox link\n" +
			"/help - Show this help\n" +
			"/info - Show your information\n\n" +
			"📌 <b>How to use:</b>\n" +
			"<b>In Private Chat:</b> Send Terabox links directly\n" +
			"<b>In Groups:</b> Use /genny &lt;terabox-link&gt;\n\n" +
			"📌 <b>Example Links:</b>\n" +
			"• https://terabox.com/s/...\n" +
			"• https://www.terabox.com/s/...",
	)
}

func (t texts) info(u records.UserInfo, totalUsers, activeSessions int) string {
	username := "N/A"
	if u.Username != "" {
		username = u.Username
	}
	return t.withCredit(fmt.Sprintf(
		"👤 <b>Your Information</b>\n\n"+
			"🆔 ID: <code>%d</code>\n"+
			"📛 Name: %s\n"+
			"🔗 Username: @%s\n\n"+
			"📊 <b>Bot Stats:</b>\n"+
			"👥 Total Users: %d\n"+
			"🔄 Active Sessions: %d\n\n"+
			"📌 <b>Subscription Status:</b> ✅ Subscribed",
		u.ID,
		html.EscapeString(u.FullName()),
		html.EscapeString(username),
		totalUsers,
		activeSessions,
	))
}

func (t texts) subscriptionRequired() string {
	return fmt.Sprintf(
		"❌ <b>Subscription Required</b>\n\n"+
			"To use this bot, you must join:\n"+
			"1. 📢 Channel: %s\n"+
			"2. 👥 Group: %s\n\n"+
			"👉 Join both then click 'I Have Joined' button",
		t.channel,
		t.group,
	)
}

func (t texts) subscriptionVerified() string {
	return t.withCredit(
		"✅ <b>Subscription Verified!</b>\n\n" +
			"You can now use the bot.\n" +
			"Send Terabox links directly in DM or use /genny in groups.",
	)
}

func (t texts) cooldown(remaining time.Duration) string {
	secs := int64((remaining + time.Second - 1) / time.Second)
	return "⏳ Please wait " + strconv.FormatInt(max(secs, 1), 10) + " seconds before next request"
}

func (t texts) ready(link resolver.ResolvedLink) string {
	return t.withCredit(fmt.Sprintf(
		"✅ <b>Download Ready!</b>\n\n"+
			"📁 Title: %s\n"+
			"📦 Size: %s\n\n"+
			"📌 <b>Choose download method:</b>",
		html.EscapeString(link.Title),
		html.EscapeString(link.SizeDescriptor),
	))
}

func (t texts) startingDownload(title, size string) string {
	return fmt.Sprintf("🎬 <b>STARTING DOWNLOAD</b>\n\n📁 %s\n📦 %s", html.EscapeString(title), html.EscapeString(size))
}

func (t texts) progress(p relay.Progress) string {
	title := html.EscapeString(p.Title)
	switch p.Stage {
	case relay.StageDownloading:
		if p.Total <= 0 {
			return t.withCredit(fmt.Sprintf(
				"📥 <b>DOWNLOADING...</b>\n\n📁 %s\n📊 Downloaded: %s\n⚡ Speed: %s\n⏱️ Time: %s",
				title, formatSize(p.Downloaded), formatSpeed(p.Speed), formatElapsed(p.Elapsed),
			))
		}
		return t.withCredit(fmt.Sprintf(
			"📥 <b>DOWNLOADING...</b>\n\n📁 %s\n📊 Progress: %.1f%%\n⚡ Speed: %s\n⏱️ Time: %s",
			title, p.Percent, formatSpeed(p.Speed), formatElapsed(p.Elapsed),
		))
	case relay.StageDownloaded:
		return t.withCredit(fmt.Sprintf(
			"✅ <b>DOWNLOAD COMPLETE</b>\n\n🎬 File: %s\n📦 Size: %s\n⏱️ Time: %s\n📤 Ready for Telegram upload",
			title, formatSize(p.Total), formatElapsed(p.Elapsed),
		))
	case relay.StageUploading:
		return t.withCredit(fmt.Sprintf(
			"📤 <b>UPLOADING TO TELEGRAM</b>\n\n📁 %s\n📦 Size: %s\n⏳ Please wait...",
			title, formatSize(p.Total),
		))
	case relay.StageComplete:
		return t.withCredit(fmt.Sprintf(
			"✅ <b>UPLOAD COMPLETE</b>\n\n📁 %s\n📦 Size: %s\n⏱️ Time: %s",
			title, formatSize(p.Total), formatElapsed(p.Elapsed),
		))
	case relay.StageFailed:
		return t.failure(p.Title, p.Err)
	default:
		return ""
	}
}

func (t texts) caption(title string, size int64) string {
	return t.withCredit(fmt.Sprintf(
		"✅ <b>%s</b>\n\n📦 Size: %s\n👤 Via Terabox Downloader Bot",
		html.EscapeString(title), formatSize(size),
	))
}

// failure maps a relay error to the message that replaces the status message.
func (t texts) failure(title string, err error) string {
	var (
		tooLarge  *relay.TooLargeError
		noSpace   *relay.InsufficientSpaceError
		httpErr   *relay.DownloadHTTPError
		uploadErr *relay.UploadError
	)
	switch {
	case errors.As(err, &tooLarge):
		return t.withCredit(fmt.Sprintf(
			"❌ <b>File Too Large</b>\n\n"+
				"📁 Title: %s\n"+
				"📦 Size: %s\n\n"+
				"⚠️ Limits:\n"+
				"• DM: %s\n"+
				"• Groups: %s\n\n"+
				"📥 Use Direct Download link instead",
			html.EscapeString(title), formatSize(tooLarge.Size), t.dmLimit, t.groupLimit,
		))
	case errors.As(err, &noSpace):
		return textNoSpace
	case errors.As(err, &httpErr):
		return "❌ Download failed: HTTP " + strconv.Itoa(httpErr.StatusCode)
	case errors.Is(err, relay.ErrUploadTimeout):
		return textUploadTimeout
	case errors.As(err, &uploadErr):
		return "❌ Upload failed: " + html.EscapeString(truncateRunes(uploadErr.Err.Error(), genericErrorMaxRunes))
	case errors.Is(err, context.DeadlineExceeded):
		return textTimedOut
	case nil == err:
		return ""
	default:
		return "❌ Download error: " + html.EscapeString(truncateRunes(err.Error(), genericErrorMaxRunes))
	}
}

func formatSize(n int64) string {
	if n < 0 {
		return resolver.UnknownSize
	}
	return humanize.IBytes(uint64(n))
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func formatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// parseCommand splits a bot command into its name and arguments. Commands addressed to another
// bot with the /cmd@name form are rejected.
func parseCommand(text, botUsername string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name, target, addressed := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	if addressed && !strings.EqualFold(target, botUsername) {
		return "", nil, false
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}
