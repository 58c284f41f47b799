// Package forward copies every resolved link into a save chat so operators keep a trail of what
// was requested and by whom.
package forward

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/time/rate"

	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/log"
	"github.com/xeptore/teradl/records"
	"github.com/xeptore/teradl/resolver"
)

// Sender delivers one HTML formatted message to the save chat.
type Sender interface {
	SendHTML(ctx context.Context, text string) error
}

type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) SendHTML(ctx context.Context, text string) error {
	return f(ctx, text)
}

type Entry struct {
	User      records.UserInfo
	Link      resolver.ResolvedLink
	Timestamp time.Time
}

type Forwarder struct {
	sender  Sender
	limiter *rate.Limiter
	mux     sync.Mutex
	logger  zerolog.Logger
}

// New returns a Forwarder that paces its sends to one per interval. A nil sender disables
// forwarding.
func New(sender Sender, interval time.Duration, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		mux:     sync.Mutex{},
		logger:  logger,
	}
}

func (f *Forwarder) Enabled() bool {
	return nil != f.sender
}

// Forward sends the summary of e followed by its original and direct links. Failures are logged
// and the remaining messages of e are dropped.
func (f *Forwarder) Forward(ctx context.Context, e Entry) {
	if !f.Enabled() {
		return
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	logger := f.logger.With().Int64("user_id", e.User.ID).Logger()
	for i, text := range Messages(e) {
		if err := f.limiter.Wait(ctx); nil != err {
			logger.Debug().Err(err).Int("index", i).Msg("Stopped forwarding before sending all messages")
			return
		}
		if err := f.sender.SendHTML(ctx, text); nil != err {
			if errutil.IsContext(ctx) {
				return
			}
			flawP := flaw.P{"index": i, "err_debug_tree": errutil.Tree(err).FlawP()}
			logger.Error().Func(log.Flaw(flaw.From(fmt.Errorf("failed to forward message: %v", err)).Append(flawP))).Msg("Failed to forward links to save chat")
			return
		}
	}
	logger.Info().Msg("Links forwarded to save chat")
}

// Messages renders the three messages forwarded for e, in sending order.
func Messages(e Entry) []string {
	var (
		id       = strconv.FormatInt(e.User.ID, 10)
		original = html.EscapeString(e.Link.SourceURL)
		direct   = html.EscapeString(e.Link.DirectURL)
		username = "N/A"
	)
	if e.User.Username != "" {
		username = e.User.Username
	}

	var sb strings.Builder
	sb.WriteString("👤 <b>USER REQUEST</b>\n\n")
	sb.WriteString("🆔 User ID: <code>" + id + "</code>\n")
	sb.WriteString("👤 Name: " + html.EscapeString(strings.TrimSpace(e.User.FirstName+" "+e.User.LastName)) + "\n")
	sb.WriteString("📛 Username: @" + html.EscapeString(username) + "\n")
	sb.WriteString("📅 Time: " + e.Timestamp.Format(records.TimeLayout) + "\n\n")
	sb.WriteString("📁 <b>FILE DETAILS</b>\n")
	sb.WriteString("📝 Title: " + html.EscapeString(e.Link.Title) + "\n")
	sb.WriteString("📦 Size: " + html.EscapeString(e.Link.SizeDescriptor) + "\n\n")
	sb.WriteString("🔗 <b>ORIGINAL LINK</b>\n" + original + "\n\n")
	sb.WriteString("⬇️ <b>DIRECT DOWNLOAD LINK</b>\n" + direct + "\n\n")
	sb.WriteString("#Terabox #" + id + " #Links")

	return []string{
		sb.String(),
		"🔗 <b>Original Terabox Link:</b>\n" + original + "\n\n#OriginalLink",
		"⬇️ <b>Direct Download Link:</b>\n" + direct + "\n\n#DirectLink",
	}
}
