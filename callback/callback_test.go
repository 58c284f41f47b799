package callback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/teradl/callback"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "check_123", string(callback.Encode(callback.Action{Kind: callback.KindCheck, UserID: 123})))
	assert.Equal(t, "tg_987654321", string(callback.Encode(callback.Action{Kind: callback.KindRelay, UserID: 987654321})))
	assert.Panics(t, func() { callback.Encode(callback.Action{UserID: 1}) })
}

func TestDecode(t *testing.T) {
	t.Parallel()

	for _, a := range []callback.Action{
		{Kind: callback.KindCheck, UserID: 1},
		{Kind: callback.KindRelay, UserID: 7_000_000_000},
	} {
		got, err := callback.Decode(callback.Encode(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	for _, garbage := range []string{"", "check_", "tg_abc", "tg_-5", "tg_0", "dl_12", "check12", "TG_12", "tg_12_3"} {
		_, err := callback.Decode([]byte(garbage))
		require.ErrorIs(t, err, callback.ErrUnknownPayload, "payload %q", garbage)
	}
}
