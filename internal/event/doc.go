/*
Package event fans journal events out to in-process subscribers.

Every event appended through a publishing journal is delivered here. Two
consumption styles are supported:

Direct subscribers receive the typed event, either for one kind or for all:

	unsubscribe := bus.Subscribe(types.EventCommandFinalized, func(e types.Event) {
		fmt.Println(e.Finalized.Command)
	})
	defer unsubscribe()

Stream consumers read events decoded from the watermill gochannel topic:

	events, err := bus.Stream(ctx)
	for e := range events {
		...
	}

gochannel is not persistent: a Stream only sees events published after it
subscribed.

Subscribers run in the publisher's goroutine, which is the session
appending to the journal. They must return quickly and must not publish
from inside the callback.
*/
package event
