package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// idleWatcher counts in-flight requests of a tab and closes done once the
// count has stayed at zero for idleAfter.
type idleWatcher struct {
	idleAfter time.Duration
	active    int32

	timerMu sync.Mutex
	timer   *time.Timer
	once    sync.Once
	done    chan struct{}
}

// watchNetworkIdle starts listening on the tab bound to ctx. The listener is
// dropped when ctx is done.
func watchNetworkIdle(ctx context.Context, idleAfter time.Duration) *idleWatcher {
	w := &idleWatcher{idleAfter: idleAfter, done: make(chan struct{})}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&w.active, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			// Requests started before we subscribed can push the count negative.
			if n := atomic.AddInt32(&w.active, -1); n <= 0 {
				atomic.StoreInt32(&w.active, 0)
				w.arm()
			}
		}
	})

	go func() {
		<-ctx.Done()
		w.timerMu.Lock()
		defer w.timerMu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
		}
	}()

	return w
}

// arm (re)starts the quiet-period timer.
func (w *idleWatcher) arm() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.idleAfter, func() {
		if atomic.LoadInt32(&w.active) == 0 {
			w.once.Do(func() { close(w.done) })
		}
	})
}

func (w *idleWatcher) Done() <-chan struct{} {
	return w.done
}
