package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/errutil"
)

// MaxBodySize bounds how much of a small JSON response body is ever buffered in memory.
const MaxBodySize = 4 << 20

func readResponseBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
			return nil, flaw.From(fmt.Errorf("failed to read response body: %v", err)).Append(flawP)
		}
	}
	return respBody, nil
}

func ReadResponseBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	respBody, err := readResponseBody(ctx, resp)
	if nil != err {
		return nil, err
	}
	if len(respBody) == 0 {
		return nil, flaw.From(errors.New("unexpected empty response body"))
	}
	return respBody, nil
}

// ContentLength returns the declared size of the response body, or -1 when the server omitted it
// or sent something that is not a non-negative integer.
func ContentLength(h http.Header) int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if nil != err || n < 0 {
		return -1
	}
	return n
}

// Drain discards what is left of the body so that the underlying connection can be reused.
func Drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
	_ = resp.Body.Close()
}
