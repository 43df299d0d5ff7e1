package telemetry

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Subscription is an explicit handle on a lifecycle registration, so
// teardown is symmetric and verifiable. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// Notifier announces that the host process is going away. The pipeline
// subscribes so it can run its unload-safe flush before the process
// exits.
type Notifier interface {
	Subscribe(fn func()) Subscription
}

type funcSubscription struct {
	once   sync.Once
	cancel func()
}

func (s *funcSubscription) Cancel() {
	s.once.Do(s.cancel)
}

// SignalNotifier adapts SIGINT/SIGTERM into lifecycle notifications.
type SignalNotifier struct{}

func NewSignalNotifier() *SignalNotifier {
	return &SignalNotifier{}
}

func (n *SignalNotifier) Subscribe(fn func()) Subscription {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			fn()
		case <-done:
		}
	}()

	return &funcSubscription{cancel: func() {
		signal.Stop(ch)
		close(done)
	}}
}

// ManualNotifier fires when Notify is called. Used by tests and by hosts
// that drive teardown themselves.
type ManualNotifier struct {
	mu   sync.Mutex
	subs map[int]func()
	next int
}

func NewManualNotifier() *ManualNotifier {
	return &ManualNotifier{subs: make(map[int]func())}
}

func (n *ManualNotifier) Subscribe(fn func()) Subscription {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return &funcSubscription{cancel: func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}}
}

// Notify invokes every registered subscriber.
func (n *ManualNotifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Active reports how many subscriptions are still registered.
func (n *ManualNotifier) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
