package subscription

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/domain"
	"github.com/YelzhanWeb/tableorders/internal/interfaces"
)

// Sink runs once per push of a stream, before listeners are called.
type Sink func(orders []*domain.Order)

// DefaultRetryDelay is the wait before a failed store query is reopened.
const DefaultRetryDelay = 5 * time.Second

// Registry shares one live store query between every listener of the same
// restaurant and filter. The store query is stopped when its last listener
// leaves, and reopened after it reports an error.
type Registry struct {
	store      interfaces.OrderStore
	logger     logger.Logger
	retryDelay time.Duration
	quit       chan struct{}

	mu      sync.Mutex
	streams map[string]*stream
	nextID  int
	closed  bool
}

type stream struct {
	key          string
	restaurantID string
	query        domain.OrderQuery
	stop         func()
	sink         Sink
	listeners    map[int]interfaces.Listener
	order        []int
	done         bool

	// opened is closed once the first store query is in place or failed.
	opened  chan struct{}
	openErr error

	// gen names the current store query, pushes from older ones are dropped.
	gen       int
	reopening bool

	// pushMu serializes deliveries of one stream and guards last.
	pushMu sync.Mutex
	last   []*domain.Order
}

func NewRegistry(store interfaces.OrderStore, lgr logger.Logger) *Registry {
	return &Registry{
		store:      store,
		logger:     lgr,
		retryDelay: DefaultRetryDelay,
		quit:       make(chan struct{}),
		streams:    make(map[string]*stream),
	}
}

func streamKey(restaurantID string, q domain.OrderQuery) string {
	return restaurantID + "|" + q.Key()
}

// Subscribe joins or opens the stream for (restaurantID, q). The sink of the
// first subscriber is the one the stream keeps. A listener joining a stream
// that already pushed gets the latest result replayed. The returned function
// removes only this listener and may be called any number of times.
func (r *Registry) Subscribe(restaurantID string, q domain.OrderQuery, sink Sink, listener interfaces.Listener) (func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("subscription registry is closed")
	}

	key := streamKey(restaurantID, q)
	st, joined := r.streams[key]
	if !joined {
		st = &stream{
			key:          key,
			restaurantID: restaurantID,
			query:        q,
			sink:         sink,
			listeners:    make(map[int]interfaces.Listener),
			opened:       make(chan struct{}),
			gen:          1,
		}
		r.streams[key] = st
	}

	r.nextID++
	id := r.nextID
	st.listeners[id] = listener
	st.order = append(st.order, id)
	r.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { r.leave(st, id) })
	}

	if joined {
		<-st.opened
	} else {
		r.open(st)
	}
	if st.openErr != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to open live query: %w", st.openErr)
	}
	if joined {
		go r.replay(st, id)
	}
	return unsubscribe, nil
}

// open starts the first store query of st without holding mu, the store may
// take a while to answer when it retries.
func (r *Registry) open(st *stream) {
	defer close(st.opened)

	stop, err := r.store.Watch(context.Background(), st.restaurantID, st.query, r.dispatch(st, 1))

	r.mu.Lock()
	if err != nil {
		st.openErr = err
		st.done = true
		if r.streams[st.key] == st {
			delete(r.streams, st.key)
		}
		r.mu.Unlock()
		return
	}
	if st.done || st.gen != 1 {
		// left, closed or already being reopened meanwhile
		r.mu.Unlock()
		stop()
		return
	}
	st.stop = stop
	r.mu.Unlock()

	r.logger.Debug("stream_opened", "Live order query opened", "", map[string]interface{}{
		"key": st.key,
	})
}

// reopen replaces the store query of st after retryDelay, and keeps trying
// until it succeeds or the stream is gone.
func (r *Registry) reopen(st *stream) {
	r.mu.Lock()
	if st.done || st.reopening {
		r.mu.Unlock()
		return
	}
	st.reopening = true
	st.gen++
	gen := st.gen
	stop := st.stop
	st.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-r.quit:
			return
		case <-time.After(r.retryDelay):
		}

		r.mu.Lock()
		gone := st.done
		r.mu.Unlock()
		if gone {
			return
		}

		stop, err := r.store.Watch(context.Background(), st.restaurantID, st.query, r.dispatch(st, gen))

		r.mu.Lock()
		if st.done {
			r.mu.Unlock()
			if err == nil {
				stop()
			}
			return
		}
		if err == nil {
			st.stop = stop
			st.reopening = false
			r.mu.Unlock()
			r.logger.Info("stream_reopened", "Live order query reopened", "", map[string]interface{}{
				"key":     st.key,
				"attempt": attempt,
			})
			return
		}
		r.mu.Unlock()

		r.logger.Error("stream_reopen_failed", "Failed to reopen live order query", "", map[string]interface{}{
			"key":     st.key,
			"attempt": attempt,
		}, err)
	}
}

func (r *Registry) leave(st *stream, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(st.listeners, id)
	st.order = slices.DeleteFunc(st.order, func(v int) bool { return v == id })
	if len(st.listeners) > 0 || st.done {
		return
	}

	st.done = true
	if st.stop != nil {
		st.stop()
	}
	if r.streams[st.key] == st {
		delete(r.streams, st.key)
	}
	r.logger.Debug("stream_closed", "Last listener left, live order query closed", "", map[string]interface{}{
		"key": st.key,
	})
}

func (r *Registry) replay(st *stream, id int) {
	st.pushMu.Lock()
	defer st.pushMu.Unlock()
	if st.last == nil {
		return
	}

	r.mu.Lock()
	listener, ok := st.listeners[id]
	r.mu.Unlock()
	if ok {
		listener(slices.Clone(st.last), nil)
	}
}

func (r *Registry) dispatch(st *stream, gen int) interfaces.PushFunc {
	return func(orders []*domain.Order, err error) {
		st.pushMu.Lock()
		defer st.pushMu.Unlock()

		r.mu.Lock()
		if st.done || st.gen != gen {
			r.mu.Unlock()
			return
		}
		listeners := make([]interfaces.Listener, 0, len(st.order))
		for _, id := range st.order {
			listeners = append(listeners, st.listeners[id])
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.Error("stream_failed", "Live order query reported an error", "", map[string]interface{}{
				"key": st.key,
			}, err)
			for _, l := range listeners {
				l(nil, err)
			}
			go r.reopen(st)
			return
		}

		sorted := slices.Clone(orders)
		domain.SortNewestFirst(sorted)
		st.last = sorted
		if st.sink != nil {
			st.sink(slices.Clone(sorted))
		}
		for _, l := range listeners {
			l(slices.Clone(sorted), nil)
		}
	}
}

// Streams is the number of open store queries.
func (r *Registry) Streams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Listeners counts listeners on the stream for (restaurantID, q).
func (r *Registry) Listeners(restaurantID string, q domain.OrderQuery) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.streams[streamKey(restaurantID, q)]; ok {
		return len(st.listeners)
	}
	return 0
}

// Close stops every stream. Later Subscribe calls fail and outstanding
// unsubscribe functions become no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.closed = true
	close(r.quit)
	for key, st := range r.streams {
		st.done = true
		if st.stop != nil {
			st.stop()
		}
		delete(r.streams, key)
	}
}
