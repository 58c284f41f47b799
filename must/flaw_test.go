package must_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/must"
)

func TestBeFlaw(t *testing.T) {
	t.Parallel()

	t.Run("Wrapped", func(t *testing.T) {
		t.Parallel()
		f := flaw.From(errors.New("disk full"))
		got := must.BeFlaw(fmt.Errorf("relay: %w", f))
		require.NotNil(t, got)
		assert.Same(t, f, got)
	})

	t.Run("NotFlaw", func(t *testing.T) {
		t.Parallel()
		assert.PanicsWithValue(t, "error of type *errors.errorString is not a flaw: plain", func() {
			must.BeFlaw(errors.New("plain"))
		})
	})
}
