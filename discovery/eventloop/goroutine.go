package eventloop

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Goroutine is a single-threaded-cooperative-in-spirit event loop: all
// registered callbacks run serialized on one internal goroutine, even
// though timers themselves fire on their own goroutines, so callers
// observe the same non-reentrant semantics spec.md §5 describes.
type Goroutine struct {
	mu      sync.Mutex
	tickers map[CallbackHandle]*time.Ticker
	stopCh  map[CallbackHandle]chan struct{}
	next    CallbackHandle

	runCh  chan func()
	quitCh chan struct{}
	wg     sync.WaitGroup
	eg     errgroup.Group
}

// NewGoroutine starts the dispatch goroutine and returns a ready event loop.
func NewGoroutine() *Goroutine {
	l := &Goroutine{
		tickers: make(map[CallbackHandle]*time.Ticker),
		stopCh:  make(map[CallbackHandle]chan struct{}),
		runCh:   make(chan func(), 64),
		quitCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.dispatch()
	return l
}

func (l *Goroutine) dispatch() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.runCh:
			fn()
		case <-l.quitCh:
			// Drain whatever was already queued before shutting down.
			for {
				select {
				case fn := <-l.runCh:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (l *Goroutine) AddRepeatedCallback(fn func(), period time.Duration) CallbackHandle {
	l.mu.Lock()
	l.next++
	handle := l.next
	ticker := time.NewTicker(period)
	stop := make(chan struct{})
	l.tickers[handle] = ticker
	l.stopCh[handle] = stop
	l.mu.Unlock()

	l.eg.Go(func() error {
		for {
			select {
			case <-ticker.C:
				select {
				case l.runCh <- fn:
				case <-l.quitCh:
					return nil
				}
			case <-stop:
				return nil
			case <-l.quitCh:
				return nil
			}
		}
	})
	return handle
}

func (l *Goroutine) RemoveCallback(handle CallbackHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ticker, ok := l.tickers[handle]; ok {
		ticker.Stop()
		delete(l.tickers, handle)
	}
	if stop, ok := l.stopCh[handle]; ok {
		close(stop)
		delete(l.stopCh, handle)
	}
}

func (l *Goroutine) AddDelayedCallback(fn func()) {
	select {
	case l.runCh <- fn:
	case <-l.quitCh:
	}
}

// Close stops the dispatch goroutine and every outstanding repeated
// callback, draining whatever delayed callbacks were already queued.
func (l *Goroutine) Close() error {
	l.mu.Lock()
	for handle, ticker := range l.tickers {
		ticker.Stop()
		delete(l.tickers, handle)
	}
	for handle, stop := range l.stopCh {
		close(stop)
		delete(l.stopCh, handle)
	}
	l.mu.Unlock()

	close(l.quitCh)
	_ = l.eg.Wait()
	l.wg.Wait()
	return nil
}
