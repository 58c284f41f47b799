package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/iyear/tdl/core/dcpool"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/ctxutil"
	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/log"
	"github.com/xeptore/teradl/must"
	"github.com/xeptore/teradl/relay"
	"github.com/xeptore/teradl/session"
	"github.com/xeptore/teradl/tgutil"
	"github.com/xeptore/teradl/waitqueue"
)

func (w *Worker) newUploader(ctx context.Context) (*uploader.Uploader, func() error) {
	pool := dcpool.NewPool(w.client, 8, tgutil.DefaultMiddlewares(ctx)...)
	return uploader.NewUploader(pool.Default(ctx)).WithPartSize(uploader.MaximumPartSize).WithThreads(4), pool.Close
}

// relayToChat downloads the session's file and posts it as a streamable video into the chat that
// status lives in. status is edited along the way and removed once the video is posted.
func (w *Worker) relayToChat(ctx, msgCtx context.Context, logger zerolog.Logger, status *statusMessage, private bool, sess *session.Session) {
	logger = logger.With().Str("title", sess.Link.Title).Logger()

	if err := w.edit(msgCtx, status, w.texts.startingDownload(sess.Link.Title, sess.Link.SizeDescriptor), nil); nil != err {
		w.logSendError(msgCtx, logger, err, "Failed to edit status message")
	}

	wq := waitqueue.New(ctx, config.ChatEditMinInterval, config.ChatEditCapacity, config.ChatEditWindow)
	defer wq.Close()

	rep := &statusReporter{w: w, msgCtx: msgCtx, status: status, wq: wq, logger: logger}
	up := relay.UploaderFunc(func(ctx context.Context, f relay.File) error {
		return w.uploadVideo(ctx, status.peer, f)
	})
	req := relay.Request{DirectURL: sess.Link.DirectURL, Title: sess.Link.Title, Ceiling: w.ceiling(private)}

	res, err := w.relay.Run(ctx, req, rep, up)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			logger.Info().Msg("Relay aborted by shutdown")
		case errutil.IsFlaw(err):
			logger.Error().Func(log.Flaw(err)).Msg("Relay failed")
		default:
			logger.Warn().Err(err).Msg("Relay failed")
		}
		return
	}

	logger.Info().Int64("size", res.Size).Dur("download_time", res.DownloadTime).Dur("upload_time", res.UploadTime).Msg("File relayed")
	if err := ctxutil.Sleep(msgCtx, config.StatusDeleteDelay); nil != err {
		return
	}
	if err := w.delete(msgCtx, status); nil != err {
		w.logSendError(msgCtx, logger, err, "Failed to delete status message")
	}
}

func (w *Worker) uploadVideo(ctx context.Context, peer tg.InputPeerClass, f relay.File) (err error) {
	flawP := flaw.P{"path": f.Path, "name": f.Name, "size": f.Size}

	up, cancel := w.newUploader(ctx)
	defer func() {
		if cancelErr := cancel(); nil != cancelErr {
			flawP["err_debug_tree"] = errutil.Tree(cancelErr).FlawP()
			cancelErr = flaw.From(fmt.Errorf("failed to close uploader pool: %v", cancelErr)).Append(flawP)
			switch {
			case nil == err:
				err = cancelErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context ended")).Join(cancelErr)
			case errutil.IsFlaw(err):
				err = must.BeFlaw(err).Join(cancelErr)
			default:
				panic(errutil.UnknownError(err))
			}
		}
	}()

	upload, err := up.FromPath(ctx, f.Path)
	if nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to upload video file: %v", err)).Append(flawP)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(f.Name))
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	document := message.UploadedDocument(upload, styled(w.texts.caption(f.Title, f.Size))).
		MIME(mimeType).
		Attributes(&tg.DocumentAttributeFilename{FileName: f.Name}).
		Video().
		SupportsStreaming()

	if _, err := w.sender.To(peer).Media(ctx, document); nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return flaw.From(fmt.Errorf("failed to send video: %v", err)).Append(flawP)
	}
	return nil
}

// statusReporter renders relay progress into the status message. Edits are paced by wq.
type statusReporter struct {
	w      *Worker
	msgCtx context.Context //nolint:containedctx
	status *statusMessage
	wq     *waitqueue.WaitQueue
	logger zerolog.Logger
}

func (r *statusReporter) Report(ctx context.Context, p relay.Progress) error {
	text := r.w.texts.progress(p)
	if text == "" {
		return nil
	}
	if p.Stage == relay.StageFailed {
		// The relay context may already be gone, the failure still has to reach the user.
		ctx = r.msgCtx
	}
	return r.wq.SendSingle(ctx, func() error {
		return r.w.edit(r.msgCtx, r.status, text, nil)
	})
}
