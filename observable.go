package keychain

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// box gives the feed a concrete element type for interface valued updates.
type box[T any] struct {
	v T
}

// observable is a value with change notifications. New subscribers receive
// the current value first, if one was ever set, then the later changes.
type observable[T any] struct {
	mu    sync.Mutex
	feed  event.Feed
	value T
	set   bool
}

func (o *observable[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.value = v
	o.set = true
	o.feed.Send(box[T]{v})
}

func (o *observable[T]) Get() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.value, o.set
}

// Subscribe delivers values on ch. A slow subscriber only sees the latest
// value it missed, so Set never waits on it.
func (o *observable[T]) Subscribe(ch chan<- T) event.Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	in := make(chan box[T], 1)
	if o.set {
		in <- box[T]{o.value}
	}

	sub := o.feed.Subscribe(in)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()

		var (
			latest T
			out    chan<- T
		)
		for {
			select {
			case b := <-in:
				latest = b.v
				out = ch
			case out <- latest:
				out = nil
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}
