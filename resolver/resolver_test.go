package resolver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/teradl/resolver"
	"github.com/xeptore/teradl/retry"
)

const shareLink = "https://www.terabox.com/s/1abcDEF"

const okBody = `{"data":[{"download":"https://d.example.com/file.mp4","title":"Holiday.mp4","size":"512 MB"}]}`

type step struct {
	status int
	body   string
}

func newAPI(t *testing.T, steps ...step) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, shareLink, r.URL.Query().Get("link"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		s := steps[min(n, len(steps))-1]
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newResolver(srv *httptest.Server) *resolver.Resolver {
	return resolver.New(
		srv.URL,
		"secret",
		zerolog.Nop(),
		resolver.WithHTTPClient(srv.Client()),
		resolver.WithWaitPolicy(retry.None),
		resolver.WithTimeout(2*time.Second),
	)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("SucceedsOnThirdAttempt", func(t *testing.T) {
		t.Parallel()

		srv, hits := newAPI(t,
			step{status: http.StatusInternalServerError, body: "boom"},
			step{status: http.StatusBadGateway, body: ""},
			step{status: http.StatusOK, body: okBody},
		)

		res, err := newResolver(srv).Resolve(t.Context(), shareLink, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 3, hits.Load())
		assert.Equal(t, resolver.ResolvedLink{
			SourceURL:      shareLink,
			DirectURL:      "https://d.example.com/file.mp4",
			Title:          "Holiday.mp4",
			SizeDescriptor: "512 MB",
		}, *res)
	})

	t.Run("ExhaustsAttempts", func(t *testing.T) {
		t.Parallel()

		srv, hits := newAPI(t, step{status: http.StatusServiceUnavailable, body: "down"})

		_, err := newResolver(srv).Resolve(t.Context(), shareLink, 3)
		require.ErrorIs(t, err, resolver.ErrNotFound)
		assert.EqualValues(t, 3, hits.Load())

		notFound := new(resolver.NotFoundError)
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, 3, notFound.Attempts)
	})

	t.Run("MalformedBodiesAreRetried", func(t *testing.T) {
		t.Parallel()

		srv, hits := newAPI(t,
			step{status: http.StatusOK, body: "not json"},
			step{status: http.StatusOK, body: `{"data":[]}`},
			step{status: http.StatusOK, body: `{"data":[{"download":"ftp://nope"}]}`},
			step{status: http.StatusOK, body: `{"data":[{"download":42}]}`},
			step{status: http.StatusOK, body: `{"data":[{"download":"https://d.example.com/x"}]}`},
		)

		res, err := newResolver(srv).Resolve(t.Context(), shareLink, 5)
		require.NoError(t, err)
		assert.EqualValues(t, 5, hits.Load())
		assert.Equal(t, resolver.DefaultTitle, res.Title)
		assert.Equal(t, resolver.UnknownSize, res.SizeDescriptor)
	})

	t.Run("NumericSize", func(t *testing.T) {
		t.Parallel()

		srv, _ := newAPI(t, step{status: http.StatusOK, body: `{"data":[{"download":"https://d.example.com/x","size":1048576}]}`})

		res, err := newResolver(srv).Resolve(t.Context(), shareLink, 1)
		require.NoError(t, err)
		n, ok := res.SizeBytes()
		require.True(t, ok)
		assert.EqualValues(t, 1048576, n)
	})

	t.Run("Canceled", func(t *testing.T) {
		t.Parallel()

		srv, _ := newAPI(t, step{status: http.StatusInternalServerError})
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := newResolver(srv).Resolve(ctx, shareLink, 3)
		require.ErrorIs(t, err, context.Canceled)
		require.NotErrorIs(t, err, resolver.ErrNotFound)
	})
}

func TestIsLink(t *testing.T) {
	t.Parallel()

	assert.True(t, resolver.IsLink("look https://www.TeraBox.com/s/1abc"))
	assert.True(t, resolver.IsLink("https://1024tera.com/s/xyz"))
	assert.True(t, resolver.IsLink("https://teraboxapp.com/s/xyz"))
	assert.False(t, resolver.IsLink("https://example.com/terabox"))
	assert.False(t, resolver.IsLink("hello"))
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		n  int64
		ok bool
	}{
		{in: "512 MB", n: 512_000_000, ok: true},
		{in: "1.5 GiB", n: 1610612736, ok: true},
		{in: "10485760", n: 10485760, ok: true},
		{in: "Unknown", ok: false},
		{in: "", ok: false},
		{in: "huge", ok: false},
	}
	for _, c := range cases {
		n, ok := resolver.ParseSize(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		assert.Equal(t, c.n, n, "input %q", c.in)
	}
}
