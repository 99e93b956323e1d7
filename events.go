package keychain

import (
	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/signingkeychain-go/signingkey"
)

type EventType int

const (
	// KeyAdded is sent when a key joins the keychain.
	KeyAdded EventType = iota
	// ActiveKeyChanged is sent when another key becomes active.
	ActiveKeyChanged
)

func (t EventType) String() string {
	switch t {
	case KeyAdded:
		return "key added"
	case ActiveKeyChanged:
		return "active key changed"
	default:
		return "unknown"
	}
}

// Event is a discrete keychain change. Unlike the observe methods, events
// are not replayed to new subscribers.
type Event struct {
	Type  EventType
	Key   signingkey.SigningKey
	Index int
}

// subscribeQueued forwards every event from feed to ch in order. Events wait
// in a queue for slow subscribers, so Send on the feed never blocks on them.
func subscribeQueued(feed *event.Feed, ch chan<- Event) event.Subscription {
	in := make(chan Event, 1)
	sub := feed.Subscribe(in)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()

		var queue []Event
		for {
			var (
				out  chan<- Event
				next Event
			)
			if len(queue) > 0 {
				out = ch
				next = queue[0]
			}

			select {
			case ev := <-in:
				queue = append(queue, ev)
			case out <- next:
				queue = queue[1:]
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}
