package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/config"
	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/httputil"
	"github.com/xeptore/teradl/metrics"
	"github.com/xeptore/teradl/retry"
)

var ErrNotFound = errors.New("no download link found")

type NotFoundError struct {
	Attempts int
	Last     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no download link found after %d attempts", e.Attempts)
}

func (e *NotFoundError) Unwrap() error { return e.Last }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

type Resolver struct {
	baseURL string
	key     string
	client  *http.Client
	timeout time.Duration
	wait    retry.Policy
	logger  zerolog.Logger
}

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

func WithWaitPolicy(p retry.Policy) Option {
	return func(r *Resolver) { r.wait = p }
}

func New(baseURL, key string, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: baseURL,
		key:     key,
		client:  http.DefaultClient,
		timeout: config.ResolveRequestTimeout,
		wait:    retry.Jittered(config.ResolveRetryWait, config.ResolveRetryJitterMin, config.ResolveRetryJitterMax),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve asks the resolution API for the direct download URL behind link, trying up to
// maxAttempts times. Every failed attempt is retried, whatever the cause. When all of them fail
// the error matches ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, link string, maxAttempts int) (*ResolvedLink, error) {
	logger := r.logger.With().Str("link", truncate(link, 50)).Logger()

	res, attempts, err := retry.Do(ctx, maxAttempts, r.wait, nil, func(ctx context.Context, attempt int) (*ResolvedLink, error) {
		logger.Debug().Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("Resolving link")
		res, err := r.attempt(ctx, link)
		if nil != err {
			if errutil.IsContext(ctx) {
				return nil, ctx.Err()
			}
			metrics.ResolverAttempts.WithLabelValues("failed").Inc()
			logger.Warn().Int("attempt", attempt).Err(err).Msg("Resolution attempt failed")
			return nil, err
		}
		metrics.ResolverAttempts.WithLabelValues("ok").Inc()
		return res, nil
	})
	if nil != err {
		if errutil.IsContext(ctx) {
			metrics.Resolutions.WithLabelValues("canceled").Inc()
			return nil, ctx.Err()
		}
		metrics.Resolutions.WithLabelValues("not_found").Inc()
		logger.Error().Int("attempts", attempts).Err(err).Msg("All resolution attempts failed")
		return nil, &NotFoundError{Attempts: attempts, Last: errors.Unwrap(err)}
	}

	metrics.Resolutions.WithLabelValues("ok").Inc()
	logger.Info().Int("attempts", attempts).Msg("Link resolved")
	return res, nil
}

func (r *Resolver) attempt(ctx context.Context, link string) (*ResolvedLink, error) {
	reqURL, err := url.Parse(r.baseURL)
	if nil != err {
		return nil, flaw.From(fmt.Errorf("failed to parse resolver base url: %v", err))
	}
	q := reqURL.Query()
	q.Set("key", r.key)
	q.Set("link", link)
	reqURL.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL.String(), nil)
	if nil != err {
		return nil, flaw.From(fmt.Errorf("failed to create resolve request: %v", err))
	}
	req.Header.Set("User-Agent", lo.Sample(userAgents))
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send resolve request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httputil.Drain(resp)
		return nil, fmt.Errorf("unexpected resolve response status: %s", resp.Status)
	}

	body, err := httputil.ReadResponseBody(reqCtx, resp)
	if nil != err {
		return nil, err
	}

	return parseResponse(link, body)
}

func parseResponse(link string, body []byte) (*ResolvedLink, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("resolve response is not valid json")
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, errors.New("resolve response has no data list")
	}
	items := data.Array()
	if len(items) == 0 {
		return nil, errors.New("resolve response data list is empty")
	}

	first := items[0]
	download := first.Get("download")
	if download.Type != gjson.String || !strings.HasPrefix(download.Str, "http") {
		return nil, fmt.Errorf("resolve response has invalid download field: %s", truncate(download.Raw, 100))
	}

	title := DefaultTitle
	if v := first.Get("title"); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
		title = v.Str
	}

	size := UnknownSize
	switch v := first.Get("size"); v.Type {
	case gjson.String:
		if strings.TrimSpace(v.Str) != "" {
			size = v.Str
		}
	case gjson.Number:
		size = v.Raw
	}

	return &ResolvedLink{
		SourceURL:      link,
		DirectURL:      download.Str,
		Title:          title,
		SizeDescriptor: size,
	}, nil
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
