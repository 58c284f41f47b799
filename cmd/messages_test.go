package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/records"
	"github.com/xeptore/teradl/relay"
	"github.com/xeptore/teradl/resolver"
)

func testTexts() texts {
	return newTexts(&config.Config{ //nolint:exhaustruct
		Subscription: config.Subscription{Channel: "@NetFusionTG", Group: "@YourNetFusion"}, //nolint:exhaustruct
		Limits:       config.Limits{DMMaxSize: 1 << 30, GroupMaxSize: 0},
		Credit:       "by <Genny>",
	})
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{text: "/start", name: "start", args: []string{}, ok: true},
		{text: "/genny https://terabox.com/s/abc", name: "genny", args: []string{"https://terabox.com/s/abc"}, ok: true},
		{text: "/genny@TeraDLBot  https://terabox.com/s/abc ", name: "genny", args: []string{"https://terabox.com/s/abc"}, ok: true},
		{text: "/GENNY@teradlbot", name: "genny", args: []string{}, ok: true},
		{text: "/genny@OtherBot https://terabox.com/s/abc", ok: false},
		{text: "https://terabox.com/s/abc", ok: false},
		{text: "/", ok: false},
		{text: "", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()

			name, args, ok := parseCommand(tc.text, "TeraDLBot")
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0s", formatElapsed(0))
	assert.Equal(t, "59s", formatElapsed(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "1m 5s", formatElapsed(65*time.Second))
	assert.Equal(t, "2h 3m", formatElapsed(2*time.Hour+3*time.Minute+4*time.Second))
}

func TestOffersRelay(t *testing.T) {
	t.Parallel()

	const gib = int64(1 << 30)
	link := func(size string) resolver.ResolvedLink {
		return resolver.ResolvedLink{SourceURL: "", DirectURL: "", Title: "", SizeDescriptor: size}
	}

	assert.True(t, offersRelay(link("512 MB"), gib))
	assert.False(t, offersRelay(link("2 GB"), gib))
	assert.True(t, offersRelay(link(resolver.UnknownSize), gib))
	assert.True(t, offersRelay(link("2 GB"), relay.Unlimited))
}

func TestCooldownText(t *testing.T) {
	t.Parallel()

	tx := testTexts()
	assert.Equal(t, "⏳ Please wait 30 seconds before next request", tx.cooldown(30*time.Second))
	assert.Equal(t, "⏳ Please wait 13 seconds before next request", tx.cooldown(12*time.Second+time.Millisecond))
	assert.Equal(t, "⏳ Please wait 1 seconds before next request", tx.cooldown(0))
}

func TestFailureText(t *testing.T) {
	t.Parallel()

	tx := testTexts()

	tooLarge := tx.failure("a<b>.mp4", &relay.TooLargeError{Size: 2 << 30, Ceiling: 1 << 30, Speculative: true})
	assert.Contains(t, tooLarge, "File Too Large")
	assert.Contains(t, tooLarge, "a&lt;b&gt;.mp4")
	assert.Contains(t, tooLarge, "• DM: 1.0 GiB")
	assert.Contains(t, tooLarge, "• Groups: Unlimited")
	assert.True(t, strings.HasSuffix(tooLarge, "by &lt;Genny&gt;"))

	assert.Equal(t, "❌ Download failed: HTTP 500", tx.failure("", &relay.DownloadHTTPError{StatusCode: 500}))
	assert.Equal(t, textUploadTimeout, tx.failure("", relay.ErrUploadTimeout))
	assert.Equal(t, textNoSpace, tx.failure("", &relay.InsufficientSpaceError{Need: 10, Free: 1}))
	assert.Equal(t, textTimedOut, tx.failure("", context.DeadlineExceeded))
	assert.Equal(t, "❌ Upload failed: FILE_PARTS_INVALID", tx.failure("", &relay.UploadError{Err: errors.New("FILE_PARTS_INVALID")}))

	generic := tx.failure("", errors.New(strings.Repeat("é", 150)))
	assert.Equal(t, "❌ Download error: "+strings.Repeat("é", 100), generic)
}

func TestProgressText(t *testing.T) {
	t.Parallel()

	tx := testTexts()

	known := tx.progress(relay.Progress{
		Stage:      relay.StageDownloading,
		Title:      "Holiday.mp4",
		Downloaded: 512 << 20,
		Total:      1 << 30,
		Percent:    50,
		Elapsed:    65 * time.Second,
		Speed:      8 << 20,
		Err:        nil,
	})
	assert.Contains(t, known, "📊 Progress: 50.0%")
	assert.Contains(t, known, "⚡ Speed: 8.0 MiB/s")
	assert.Contains(t, known, "⏱️ Time: 1m 5s")

	unknown := tx.progress(relay.Progress{Stage: relay.StageDownloading, Title: "x", Downloaded: 10 << 20, Total: -1}) //nolint:exhaustruct
	assert.Contains(t, unknown, "📊 Downloaded: 10 MiB")

	assert.Empty(t, tx.progress(relay.Progress{Stage: relay.StageIdle})) //nolint:exhaustruct

	failed := tx.progress(relay.Progress{Stage: relay.StageFailed, Err: relay.ErrUploadTimeout}) //nolint:exhaustruct
	assert.Equal(t, textUploadTimeout, failed)
}

func TestInfoText(t *testing.T) {
	t.Parallel()

	text := testTexts().info(records.UserInfo{ID: 42, Username: "", FirstName: "Ada", LastName: "L"}, 7, 2)
	assert.Contains(t, text, "🆔 ID: <code>42</code>")
	assert.Contains(t, text, "📛 Name: Ada L")
	assert.Contains(t, text, "🔗 Username: @N/A")
	assert.Contains(t, text, "👥 Total Users: 7")
	assert.Contains(t, text, "🔄 Active Sessions: 2")
}
