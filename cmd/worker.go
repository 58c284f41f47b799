package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/cache"
	"github.com/xeptore/teradl/callback"
	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/forward"
	"github.com/xeptore/teradl/log"
	"github.com/xeptore/teradl/ratelimit"
	"github.com/xeptore/teradl/records"
	"github.com/xeptore/teradl/relay"
	"github.com/xeptore/teradl/resolver"
	"github.com/xeptore/teradl/session"
	"github.com/xeptore/teradl/subscription"
	"github.com/xeptore/teradl/tgutil"
)

type Worker struct {
	config    *config.Config
	texts     texts
	client    *telegram.Client
	api       *tg.Client
	sender    *message.Sender
	self      *tg.User
	peers     *cache.PeerCache
	gate      *subscription.Gate
	cooldown  *ratelimit.Cooldown
	sessions  *session.Store
	records   *records.Store
	resolver  *resolver.Resolver
	relay     *relay.Relay
	forwarder *forward.Forwarder
	jobs      sync.WaitGroup
	logger    zerolog.Logger
}

// incoming is a message addressed to the bot together with what is known about its sender.
type incoming struct {
	entities tg.Entities
	update   message.AnswerableMessageUpdate
	msg      *tg.Message
	user     records.UserInfo
	private  bool
	chatID   int64
}

// statusMessage is a message of the bot that gets edited as a request makes progress.
type statusMessage struct {
	peer tg.InputPeerClass
	id   int
}

func styled(text string) message.StyledTextOption {
	return html.Format(nil, "%s", text)
}

// spawn runs fn in the background so that slow requests never hold up the update loop.
func (w *Worker) spawn(logger zerolog.Logger, fn func()) {
	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		defer func() {
			if r := recover(); nil != r {
				logger.Error().Func(log.Panic(r)).Msg("Recovered from panic while handling update")
			}
		}()
		fn()
	}()
}

// Wait blocks until every spawned job returns or ctx ends.
func (w *Worker) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn().Msg("Gave up waiting for running jobs")
	}
}

func (w *Worker) logSendError(ctx context.Context, logger zerolog.Logger, err error, msg string) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Error().Func(log.Flaw(flaw.From(err))).Msg("Timeout while sending reply")
		return
	}
	flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
	logger.Error().Func(log.Flaw(flaw.From(err).Append(flawP))).Msg(msg)
}

func (w *Worker) reply(ctx context.Context, in incoming, text string, markup tg.ReplyMarkupClass) (*statusMessage, error) {
	b := w.sender.Reply(in.entities, in.update)
	if nil != markup {
		b = b.Markup(markup)
	}
	upd, err := b.StyledText(ctx, styled(text))
	if nil != err {
		return nil, err
	}

	peer, ok := tgutil.InputPeer(in.msg.PeerID, w.peers)
	if !ok {
		return nil, flaw.From(fmt.Errorf("chat %d is not addressable", in.chatID))
	}
	id, ok := tgutil.SentMessageID(upd)
	if !ok {
		return nil, flaw.From(errors.New("could not find sent message id in send result"))
	}
	return &statusMessage{peer: peer, id: id}, nil
}

func (w *Worker) edit(ctx context.Context, s *statusMessage, text string, markup tg.ReplyMarkupClass) error {
	b := &w.sender.To(s.peer).Builder
	if nil != markup {
		b = b.Markup(markup)
	}
	_, err := b.Edit(s.id).StyledText(ctx, styled(text))
	return err
}

func (w *Worker) delete(ctx context.Context, s *statusMessage) error {
	_, err := w.sender.To(s.peer).Revoke().Messages(ctx, s.id)
	return err
}

func (w *Worker) answerCallback(ctx context.Context, queryID int64, text string, alert bool) error {
	//nolint:exhaustruct
	_, err := w.api.MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Message: text,
		Alert:   alert,
	})
	return err
}

func userInfo(e tg.Entities, id int64) records.UserInfo {
	info := records.UserInfo{ID: id, Username: "", FirstName: "", LastName: ""}
	if u, ok := e.Users[id]; ok {
		info.Username = u.Username
		info.FirstName = u.FirstName
		info.LastName = u.LastName
	}
	return info
}

func (w *Worker) toIncoming(e tg.Entities, upd message.AnswerableMessageUpdate, m *tg.Message) (incoming, bool) {
	var userID int64
	switch {
	case tgutil.IsPrivate(m.PeerID):
		userID = tgutil.BotAPIID(m.PeerID)
	default:
		from, ok := m.GetFromID()
		if !ok {
			return incoming{}, false //nolint:exhaustruct
		}
		u, ok := from.(*tg.PeerUser)
		if !ok {
			return incoming{}, false //nolint:exhaustruct
		}
		userID = u.UserID
	}
	return incoming{
		entities: e,
		update:   upd,
		msg:      m,
		user:     userInfo(e, userID),
		private:  tgutil.IsPrivate(m.PeerID),
		chatID:   tgutil.BotAPIID(m.PeerID),
	}, true
}

func (w *Worker) buildOnMessage(ctx, msgCtx context.Context) func(context.Context, tg.Entities, message.AnswerableMessageUpdate) error {
	return func(_ context.Context, e tg.Entities, upd message.AnswerableMessageUpdate) error {
		m, ok := upd.GetMessage().(*tg.Message)
		if !ok || m.Out || m.Message == "" {
			return nil
		}
		w.peers.Remember(e)

		in, ok := w.toIncoming(e, upd, m)
		if !ok {
			return nil
		}
		logger := w.logger.With().Int64("user_id", in.user.ID).Int64("chat_id", in.chatID).Int("message_id", m.ID).Logger()
		w.spawn(logger, func() { w.handleMessage(ctx, msgCtx, logger, in) })
		return nil
	}
}

func (w *Worker) handleMessage(ctx, msgCtx context.Context, logger zerolog.Logger, in incoming) {
	text := strings.TrimSpace(in.msg.Message)
	name, args, isCommand := parseCommand(text, w.self.Username)
	if !isCommand {
		if !in.private || strings.HasPrefix(text, "/") {
			return
		}
		if !w.requireSubscription(ctx, msgCtx, logger, in, subscription.ScopeNone) {
			return
		}
		if resolver.IsLink(text) {
			w.resolve(ctx, msgCtx, logger, in, text)
		}
		return
	}

	switch name {
	case "start", "genny", "help", "info":
	default:
		return
	}
	logger = logger.With().Str("command", name).Logger()
	logger.Debug().Msg("Received command")

	if !in.private && !w.config.IsAllowedGroup(in.chatID) {
		logger.Info().Msg("Command received in a group that is not allowed")
		if _, err := w.reply(msgCtx, in, textDenied, nil); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to send reply")
		}
		return
	}

	switch name {
	case "start":
		if !in.private {
			if _, err := w.reply(msgCtx, in, w.texts.welcomeGroup(), nil); nil != err {
				w.logSendError(msgCtx, logger, err, "Failed to send reply")
			}
			return
		}
		if !w.requireSubscription(ctx, msgCtx, logger, in, subscription.ScopeBoth) {
			return
		}
		if _, err := w.reply(msgCtx, in, w.texts.welcomePrivate(in.user.FirstName), nil); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to send reply")
		}
	case "genny":
		if !w.requireSubscription(ctx, msgCtx, logger, in, subscription.ScopeNone) {
			return
		}
		if len(args) == 0 {
			if _, err := w.reply(msgCtx, in, textGennyUsage, nil); nil != err {
				w.logSendError(msgCtx, logger, err, "Failed to send reply")
			}
			return
		}
		w.resolve(ctx, msgCtx, logger, in, args[0])
	case "help":
		if !w.requireSubscription(ctx, msgCtx, logger, in, subscription.ScopeNone) {
			return
		}
		if _, err := w.reply(msgCtx, in, w.texts.help(), nil); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to send reply")
		}
	case "info":
		if !w.requireSubscription(ctx, msgCtx, logger, in, subscription.ScopeNone) {
			return
		}
		if _, err := w.reply(msgCtx, in, w.texts.info(in.user, w.records.Len(), w.sessions.Len()), nil); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to send reply")
		}
	}
}

func (w *Worker) checkSubscription(ctx context.Context, userID int64) subscription.Result {
	checkCtx, cancel := context.WithTimeout(ctx, config.SubscriptionTimeout)
	defer cancel()
	return w.gate.Check(checkCtx, userID)
}

// requireSubscription replies with the join prompt when the user is missing from the channel or
// the group. A prompt scope other than ScopeNone overrides which join buttons are offered.
func (w *Worker) requireSubscription(ctx, msgCtx context.Context, logger zerolog.Logger, in incoming, prompt subscription.Scope) bool {
	res := w.checkSubscription(ctx, in.user.ID)
	if res.OK {
		return true
	}
	if errutil.IsContext(ctx) {
		return false
	}

	logger.Info().Stringer("failing", res.Failing).Msg("User is not subscribed")
	scope := res.Failing
	if prompt != subscription.ScopeNone {
		scope = prompt
	}
	kb := tgutil.JoinKeyboard(scope, w.config.Subscription.ChannelURL, w.config.Subscription.GroupURL, in.user.ID)
	if _, err := w.reply(msgCtx, in, w.texts.subscriptionRequired(), kb); nil != err {
		w.logSendError(msgCtx, logger, err, "Failed to send subscription prompt")
	}
	return false
}

// ceiling returns the largest file accepted for relay in a private chat or a group.
func (w *Worker) ceiling(private bool) int64 {
	if private {
		return w.config.Limits.DMMaxSize.Ceiling()
	}
	return w.config.Limits.GroupMaxSize.Ceiling()
}

// offersRelay reports whether the relay button is shown for link. Sizes that cannot be parsed
// are optimistically accepted and checked again once the download starts.
func offersRelay(link resolver.ResolvedLink, ceiling int64) bool {
	size, ok := link.SizeBytes()
	return !ok || ceiling < 0 || size <= ceiling
}

func (w *Worker) resolve(ctx, msgCtx context.Context, logger zerolog.Logger, in incoming, link string) {
	if ok, remaining := w.cooldown.TryAcquire(in.user.ID, time.Now()); !ok {
		logger.Debug().Dur("remaining", remaining).Msg("Request rejected by cooldown")
		if _, err := w.reply(msgCtx, in, w.texts.cooldown(remaining), nil); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to send cooldown notice")
		}
		return
	}

	status, err := w.reply(msgCtx, in, textProcessing, nil)
	if nil != err {
		w.logSendError(msgCtx, logger, err, "Failed to send processing message")
		return
	}

	resolveCtx, cancel := context.WithTimeout(ctx, config.ResolveJobTimeout)
	defer cancel()

	resolved, err := w.resolver.Resolve(resolveCtx, link, w.config.Resolver.MaxAttempts)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return
		case errors.Is(err, resolver.ErrNotFound), errors.Is(err, context.DeadlineExceeded):
			logger.Info().Err(err).Msg("Link could not be resolved")
		default:
			panic(errutil.UnknownError(err))
		}
		if err := w.edit(msgCtx, status, textNotFound, nil); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to edit status message")
		}
		return
	}

	now := time.Now()
	if err := w.records.Put(in.user, *resolved); nil != err {
		logger.Error().Func(log.Flaw(err)).Msg("Failed to persist user record")
	}
	w.sessions.Put(session.Session{UserID: in.user.ID, Link: *resolved, User: in.user, CreatedAt: now})
	if w.forwarder.Enabled() {
		entry := forward.Entry{User: in.user, Link: *resolved, Timestamp: now}
		w.spawn(logger, func() { w.forwarder.Forward(msgCtx, entry) })
	}

	kb := tgutil.ChoiceKeyboard(resolved.DirectURL, in.user.ID, offersRelay(*resolved, w.ceiling(in.private)))
	if err := w.edit(msgCtx, status, w.texts.ready(*resolved), kb); nil != err {
		w.logSendError(msgCtx, logger, err, "Failed to edit status message")
	}
}

func (w *Worker) buildOnCallback(ctx, msgCtx context.Context) func(context.Context, tg.Entities, *tg.UpdateBotCallbackQuery) error {
	return func(_ context.Context, e tg.Entities, upd *tg.UpdateBotCallbackQuery) error {
		w.peers.Remember(e)
		logger := w.logger.With().
			Int64("user_id", upd.UserID).
			Int64("chat_id", tgutil.BotAPIID(upd.Peer)).
			Int("message_id", upd.MsgID).
			Logger()
		w.spawn(logger, func() { w.handleCallback(ctx, msgCtx, logger, e, upd) })
		return nil
	}
}

func (w *Worker) handleCallback(ctx, msgCtx context.Context, logger zerolog.Logger, e tg.Entities, upd *tg.UpdateBotCallbackQuery) {
	action, err := callback.Decode(upd.Data)
	if nil != err {
		logger.Debug().Bytes("data", upd.Data).Msg("Ignoring unknown callback payload")
		if err := w.answerCallback(msgCtx, upd.QueryID, "", false); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to answer callback query")
		}
		return
	}
	logger = logger.With().Stringer("action", action.Kind).Logger()

	if action.UserID != upd.UserID {
		text := textNotForYouCheck
		if action.Kind == callback.KindRelay {
			text = textNotForYouRelay
		}
		if err := w.answerCallback(msgCtx, upd.QueryID, text, true); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to answer callback query")
		}
		return
	}
	if err := w.answerCallback(msgCtx, upd.QueryID, "", false); nil != err {
		w.logSendError(msgCtx, logger, err, "Failed to answer callback query")
	}

	peer, ok := tgutil.InputPeer(upd.Peer, w.peers)
	if !ok {
		logger.Error().Msg("Callback query chat is not addressable")
		return
	}
	status := &statusMessage{peer: peer, id: upd.MsgID}
	private := tgutil.IsPrivate(upd.Peer)

	switch action.Kind {
	case callback.KindCheck:
		res := w.checkSubscription(ctx, upd.UserID)
		if errutil.IsContext(ctx) {
			return
		}
		text, kb := w.texts.subscriptionVerified(), tg.ReplyMarkupClass(nil)
		if !res.OK {
			text = w.texts.subscriptionRequired()
			kb = tgutil.JoinKeyboard(res.Failing, w.config.Subscription.ChannelURL, w.config.Subscription.GroupURL, upd.UserID)
		}
		if err := w.edit(msgCtx, status, text, kb); nil != err {
			w.logSendError(msgCtx, logger, err, "Failed to edit subscription message")
		}
	case callback.KindRelay:
		if _, ok := w.sessions.Peek(upd.UserID); !ok {
			if err := w.edit(msgCtx, status, textSessionExpired, nil); nil != err {
				w.logSendError(msgCtx, logger, err, "Failed to edit status message")
			}
			return
		}
		if res := w.checkSubscription(ctx, upd.UserID); !res.OK {
			if errutil.IsContext(ctx) {
				return
			}
			kb := tgutil.JoinKeyboard(res.Failing, w.config.Subscription.ChannelURL, w.config.Subscription.GroupURL, upd.UserID)
			if err := w.edit(msgCtx, status, w.texts.subscriptionRequired(), kb); nil != err {
				w.logSendError(msgCtx, logger, err, "Failed to edit status message")
			}
			return
		}
		sess, err := w.sessions.Consume(upd.UserID)
		if nil != err {
			if !errors.Is(err, session.ErrExpired) {
				panic(errutil.UnknownError(err))
			}
			if err := w.edit(msgCtx, status, textSessionExpired, nil); nil != err {
				w.logSendError(msgCtx, logger, err, "Failed to edit status message")
			}
			return
		}
		w.relayToChat(ctx, msgCtx, logger, status, private, sess)
	default:
		panic(fmt.Sprintf("unexpected callback kind %s", action.Kind))
	}
}
