package tagstore

// Listener observes changes to a store.
// Callbacks run synchronously on the writing goroutine once the write is
// complete. Inside RunTransaction they are held back until commit and
// dropped if the transaction fails.
type Listener interface {
	// CollectionChanged fires when the set of entries grows or shrinks.
	CollectionChanged()
	// EntryChanged fires for every written or deleted entry.
	EntryChanged(key string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnCollectionChanged func()
	OnEntryChanged      func(key string)
}

var _ Listener = ListenerFuncs{}

func (f ListenerFuncs) CollectionChanged() {
	if f.OnCollectionChanged != nil {
		f.OnCollectionChanged()
	}
}

func (f ListenerFuncs) EntryChanged(key string) {
	if f.OnEntryChanged != nil {
		f.OnEntryChanged(key)
	}
}

type subscription struct {
	id       int
	listener Listener
}

// event is a queued notification.
type event struct {
	collection bool
	key        string
}

// Subscribe registers l and returns a function that removes it.
// The returned function may be called more than once.
func (s *Store[T]) Subscribe(l Listener) (unsubscribe func()) {
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscription{id: id, listener: l})

	return func() {
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store[T]) emit(events ...event) {
	if s.txDepth > 0 {
		s.pendingEvents = append(s.pendingEvents, events...)
		return
	}
	s.deliver(events)
}

func (s *Store[T]) deliver(events []event) {
	// Listeners may unsubscribe while being notified
	subs := append([]subscription(nil), s.subscribers...)
	for _, ev := range events {
		for _, sub := range subs {
			if ev.collection {
				sub.listener.CollectionChanged()
			} else {
				sub.listener.EntryChanged(ev.key)
			}
		}
	}
}

func collectionChanged() event {
	return event{collection: true}
}

func entryChanged(key string) event {
	return event{key: key}
}
