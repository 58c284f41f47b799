// Package waitqueue paces chat operations that target a single message, keeping edits apart by
// a minimum gap and capping how many fit in a rolling interval.
package waitqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xeptore/teradl/ctxutil"
)

type WaitQueue struct {
	timer           *time.Timer
	gap             time.Duration
	capacity        int32
	intervalTicker  *time.Ticker
	intervalCounter atomic.Int32
	sendLock        *sync.Mutex
	cancelTicker    context.CancelFunc
	done            chan struct{}
}

// New returns a queue that admits at most capacity sends per interval, each at least gap after
// the previous one. The first send goes through immediately.
func New(ctx context.Context, gap time.Duration, capacity int32, interval time.Duration) *WaitQueue {
	ctx, cancel := context.WithCancel(ctx)
	wq := &WaitQueue{
		timer:           time.NewTimer(0),
		gap:             gap,
		capacity:        capacity,
		done:            make(chan struct{}),
		intervalTicker:  time.NewTicker(interval),
		intervalCounter: atomic.Int32{},
		sendLock:        &sync.Mutex{},
		cancelTicker:    cancel,
	}

	go wq.runTicker(ctx)
	return wq
}

func (w *WaitQueue) runTicker(ctx context.Context) {
	defer func() { w.done <- struct{}{} }()
	for {
		select {
		case <-w.intervalTicker.C:
			w.intervalCounter.Store(0)
		case <-ctx.Done():
			w.intervalTicker.Stop()
			return
		}
	}
}

func (w *WaitQueue) Close() {
	w.cancelTicker()
	<-w.done
}

func (w *WaitQueue) SendSingle(ctx context.Context, fn func() error) error {
	return w.SendMany(ctx, 1, fn)
}

// SendMany waits for its turn and runs fn, which performs n sends. An error from fn is returned
// as is and the sends are not counted.
func (w *WaitQueue) SendMany(ctx context.Context, n int32, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.timer.C:
	}
	defer w.timer.Reset(w.gap)

	for {
		if err := w.trySend(fn, n); nil != err {
			if errors.Is(err, errIntervalCapReached) {
				if err := ctxutil.Sleep(ctx, max(w.gap, 50*time.Millisecond)); nil != err {
					return err
				}
				continue
			}
			return err
		}
		return nil
	}
}

var errIntervalCapReached = errors.New("wait queue interval capacity has reached, waiting for next interval")

func (w *WaitQueue) trySend(fn func() error, n int32) error {
	w.sendLock.Lock()
	defer w.sendLock.Unlock()

	if c := w.intervalCounter.Load(); w.capacity-c >= n {
		if err := fn(); nil != err {
			return err
		}
		w.intervalCounter.Add(n)
		return nil
	}
	return errIntervalCapReached
}
