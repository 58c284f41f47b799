// Package relay downloads a file from a direct link into a temporary file and hands it to an
// uploader, reporting progress along the way. The temporary file never outlives a run.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/httputil"
	"github.com/xeptore/teradl/log"
	"github.com/xeptore/teradl/mathutil"
	"github.com/xeptore/teradl/metrics"
	"github.com/xeptore/teradl/must"
)

const (
	// Unlimited disables the size ceiling.
	Unlimited int64 = -1

	chunkSize          = 512 << 10
	progressStepPct    = 5
	unknownSizeStep    = 10 << 20
	tempFilePattern    = "teradl-*.mp4"
	downloadUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	downloadReferer    = "https://www.terabox.com/"
	defaultDownloadExt = ".mp4"
)

type Request struct {
	DirectURL string
	Title     string
	// Ceiling is the largest accepted file size in bytes, or Unlimited.
	Ceiling int64
}

type Result struct {
	Size         int64
	DownloadTime time.Duration
	UploadTime   time.Duration
}

type Relay struct {
	client          *http.Client
	tempDir         string
	headTimeout     time.Duration
	downloadTimeout time.Duration
	uploadTimeout   time.Duration
	freeSpace       func(dir string) (int64, error)
	logger          zerolog.Logger
}

type Option func(*Relay)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) { r.client = c }
}

// WithTempDir sets where downloads are staged. An empty dir means os.TempDir.
func WithTempDir(dir string) Option {
	return func(r *Relay) { r.tempDir = dir }
}

func WithUploadTimeout(d time.Duration) Option {
	return func(r *Relay) { r.uploadTimeout = d }
}

func WithDownloadTimeout(d time.Duration) Option {
	return func(r *Relay) { r.downloadTimeout = d }
}

func New(logger zerolog.Logger, opts ...Option) *Relay {
	r := &Relay{
		client:          http.DefaultClient,
		tempDir:         "",
		headTimeout:     config.SizePreCheckTimeout,
		downloadTimeout: config.RelayDownloadTimeout,
		uploadTimeout:   config.RelayUploadTimeout,
		freeSpace:       freeSpace,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tempDir == "" {
		r.tempDir = os.TempDir()
	}
	return r
}

func (r *Relay) TempDir() string {
	return r.tempDir
}

// Run executes one relay. Users cannot cancel it, ctx only ends with the process.
func (r *Relay) Run(ctx context.Context, req Request, rep Reporter, up Uploader) (res *Result, err error) {
	logger := r.logger.With().Str("title", req.Title).Int64("ceiling", req.Ceiling).Logger()
	defer func() {
		outcome := outcomeOf(err)
		metrics.Relays.WithLabelValues(outcome).Inc()
		if nil != err && !errutil.IsContext(ctx) {
			r.report(ctx, rep, Progress{Stage: StageFailed, Title: req.Title, Total: -1, Err: err})
		}
		logger.Debug().Str("outcome", outcome).Msg("Relay finished")
	}()

	if size := r.headSize(ctx, req.DirectURL); size >= 0 {
		logger.Debug().Int64("declared_size", size).Msg("Size pre-check")
		if exceeds(size, req.Ceiling) {
			return nil, &TooLargeError{Size: size, Ceiling: req.Ceiling, Speculative: true}
		}
		if err := r.checkSpace(size); nil != err {
			return nil, err
		}
	}

	started := time.Now()
	path, size, err := r.download(ctx, req, rep)
	if path != "" {
		defer r.remove(path)
	}
	if nil != err {
		return nil, err
	}
	downloadTime := time.Since(started)
	metrics.RelayStageSeconds.WithLabelValues(StageDownloading.String()).Observe(downloadTime.Seconds())

	if exceeds(size, req.Ceiling) {
		return nil, &TooLargeError{Size: size, Ceiling: req.Ceiling, Speculative: false}
	}
	r.report(ctx, rep, Progress{
		Stage:      StageDownloaded,
		Title:      req.Title,
		Downloaded: size,
		Total:      size,
		Percent:    100,
		Elapsed:    downloadTime,
		Speed:      speed(size, downloadTime),
	})

	r.report(ctx, rep, Progress{Stage: StageUploading, Title: req.Title, Downloaded: size, Total: size, Percent: 100})
	uploadTime, err := r.upload(ctx, up, File{Path: path, Name: fileName(req.Title), Title: req.Title, Size: size})
	if nil != err {
		return nil, err
	}
	metrics.RelayStageSeconds.WithLabelValues(StageUploading.String()).Observe(uploadTime.Seconds())
	metrics.RelayedBytes.Add(float64(size))

	r.report(ctx, rep, Progress{
		Stage:      StageComplete,
		Title:      req.Title,
		Downloaded: size,
		Total:      size,
		Percent:    100,
		Elapsed:    uploadTime,
		Speed:      speed(size, uploadTime),
	})
	logger.Info().Int64("size", size).Dur("download_time", downloadTime).Dur("upload_time", uploadTime).Msg("Relay completed")

	return &Result{Size: size, DownloadTime: downloadTime, UploadTime: uploadTime}, nil
}

// headSize returns the Content-Length announced for url, or -1 when it cannot be learned.
func (r *Relay) headSize(ctx context.Context, url string) int64 {
	headCtx, cancel := context.WithTimeout(ctx, r.headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, url, nil)
	if nil != err {
		return -1
	}
	setDownloadHeaders(req)

	resp, err := r.client.Do(req)
	if nil != err {
		r.logger.Debug().Err(err).Msg("Size pre-check request failed")
		return -1
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return -1
	}
	return httputil.ContentLength(resp.Header)
}

func (r *Relay) checkSpace(need int64) error {
	free, err := r.freeSpace(r.tempDir)
	if nil != err {
		r.logger.Debug().Err(err).Msg("Could not determine free disk space")
		return nil
	}
	if free >= 0 && need > free {
		return &InsufficientSpaceError{Need: need, Free: free}
	}
	return nil
}

// download streams url into a new temporary file. The returned path is non-empty whenever a file
// was created, even together with an error, and the caller owns its removal.
func (r *Relay) download(ctx context.Context, rq Request, rep Reporter) (path string, size int64, err error) {
	dlCtx, cancel := context.WithTimeout(ctx, r.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, rq.DirectURL, nil)
	if nil != err {
		return "", 0, flaw.From(fmt.Errorf("failed to create download request: %v", err))
	}
	setDownloadHeaders(req)

	resp, err := r.client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return "", 0, ctx.Err()
		case errutil.IsTimeout(err):
			return "", 0, context.DeadlineExceeded
		default:
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			return "", 0, flaw.From(fmt.Errorf("failed to send download request: %v", err)).Append(flawP)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn().Interface("response", errutil.HTTPResponseFlawPayload(resp)).Msg("Unexpected download response status")
		httputil.Drain(resp)
		return "", 0, &DownloadHTTPError{StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total >= 0 && exceeds(total, rq.Ceiling) {
		return "", 0, &TooLargeError{Size: total, Ceiling: rq.Ceiling, Speculative: true}
	}

	f, err := os.CreateTemp(r.tempDir, tempFilePattern)
	if nil != err {
		flawP := flaw.P{"temp_dir": r.tempDir, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", 0, flaw.From(fmt.Errorf("failed to create temporary file: %v", err)).Append(flawP)
	}
	path = f.Name()
	defer func() {
		if closeErr := f.Close(); nil != closeErr && nil == err {
			flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(closeErr).FlawP()}
			err = flaw.From(fmt.Errorf("failed to close temporary file: %v", closeErr)).Append(flawP)
		}
	}()

	events := newLatest()
	wg, wgCtx := errgroup.WithContext(dlCtx)
	wg.Go(func() error {
		for p := range events.ch {
			r.report(ctx, rep, p)
		}
		return nil
	})
	wg.Go(func() error {
		defer events.close()
		n, err := r.stream(wgCtx, resp.Body, f, rq.Title, total, events.publish)
		size = n
		return err
	})
	if err := wg.Wait(); nil != err {
		switch {
		case errutil.IsContext(ctx):
			return path, size, ctx.Err()
		case errutil.IsTimeout(err):
			return path, size, context.DeadlineExceeded
		case errutil.IsFlaw(err):
			return path, size, must.BeFlaw(err).Append(flaw.P{"downloaded": size, "total": total})
		default:
			panic(errutil.UnknownError(err))
		}
	}
	return path, size, nil
}

func (r *Relay) stream(
	ctx context.Context,
	body io.Reader,
	w io.Writer,
	title string,
	total int64,
	publish func(Progress),
) (int64, error) {
	var (
		started    = time.Now()
		downloaded int64
		lastSteps  int64
		nextBytes  int64 = unknownSizeStep
		buf              = make([]byte, chunkSize)
	)
	progress := func() Progress {
		elapsed := time.Since(started)
		return Progress{
			Stage:      StageDownloading,
			Title:      title,
			Downloaded: downloaded,
			Total:      total,
			Percent:    mathutil.Percent(downloaded, total),
			Elapsed:    elapsed,
			Speed:      speed(downloaded, elapsed),
		}
	}
	publish(progress())

	for {
		if err := ctx.Err(); nil != err {
			return downloaded, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); nil != err {
				flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
				return downloaded, flaw.From(fmt.Errorf("failed to write to temporary file: %v", err)).Append(flawP)
			}
			downloaded += int64(n)

			if total > 0 {
				if steps := mathutil.Steps(downloaded, total, progressStepPct); steps > lastSteps {
					lastSteps = steps
					publish(progress())
				}
			} else if downloaded >= nextBytes {
				nextBytes = mathutil.NextMultiple(downloaded, unknownSizeStep)
				publish(progress())
			}
		}

		if nil != readErr {
			if errors.Is(readErr, io.EOF) {
				return downloaded, nil
			}
			if errutil.IsContext(ctx) {
				return downloaded, ctx.Err()
			}
			if errutil.IsTimeout(readErr) {
				return downloaded, context.DeadlineExceeded
			}
			flawP := flaw.P{"err_debug_tree": errutil.Tree(readErr).FlawP()}
			return downloaded, flaw.From(fmt.Errorf("failed to read download body: %v", readErr)).Append(flawP)
		}
	}
}

func (r *Relay) upload(ctx context.Context, up Uploader, f File) (time.Duration, error) {
	upCtx, cancel := context.WithTimeout(ctx, r.uploadTimeout)
	defer cancel()

	started := time.Now()
	if err := up.Upload(upCtx, f); nil != err {
		switch {
		case errutil.IsContext(ctx):
			return 0, ctx.Err()
		case errutil.IsTimeout(err), errors.Is(upCtx.Err(), context.DeadlineExceeded):
			return 0, ErrUploadTimeout
		default:
			return 0, &UploadError{Err: err}
		}
	}
	return time.Since(started), nil
}

func (r *Relay) report(ctx context.Context, rep Reporter, p Progress) {
	if nil == rep {
		return
	}
	if err := rep.Report(ctx, p); nil != err {
		if errutil.IsContext(ctx) {
			return
		}
		if errutil.IsFlaw(err) {
			r.logger.Warn().Func(log.Flaw(err)).Stringer("stage", p.Stage).Msg("Failed to report relay progress")
			return
		}
		r.logger.Warn().Err(err).Stringer("stage", p.Stage).Msg("Failed to report relay progress")
	}
}

func (r *Relay) remove(path string) {
	if err := os.Remove(path); nil != err && !errors.Is(err, os.ErrNotExist) {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		r.logger.Error().Func(log.Flaw(flaw.From(err).Append(flawP))).Msg("Failed to remove temporary file")
	}
}

func setDownloadHeaders(req *http.Request) {
	req.Header.Set("User-Agent", downloadUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Referer", downloadReferer)
}

func exceeds(size, ceiling int64) bool {
	return ceiling >= 0 && size > ceiling
}

func speed(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// fileName derives the uploaded file name from the title reported by the resolver.
func fileName(title string) string {
	name := filepath.Base(filepath.Clean("/" + title))
	if name == "/" || name == "." || name == "" {
		name = "video"
	}
	if filepath.Ext(name) == "" {
		name += defaultDownloadExt
	}
	return name
}

func outcomeOf(err error) string {
	if nil == err {
		return "ok"
	}
	var (
		tooLarge  *TooLargeError
		noSpace   *InsufficientSpaceError
		httpErr   *DownloadHTTPError
		uploadErr *UploadError
	)
	switch {
	case errors.As(err, &tooLarge):
		return "too_large"
	case errors.As(err, &noSpace):
		return "insufficient_space"
	case errors.As(err, &httpErr):
		return "download_http_error"
	case errors.Is(err, ErrUploadTimeout):
		return "upload_timeout"
	case errors.As(err, &uploadErr):
		return "upload_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "download_timeout"
	default:
		return "error"
	}
}
