package main

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Platform is the audio subsystem the reporter reads from.
type Platform interface {
	// Query returns the headphone status right now.
	Query(ctx context.Context) (Status, error)
	// Watch calls notify with a fresh status whenever the platform signals a
	// route or device change. It blocks until ctx is done.
	Watch(ctx context.Context, notify func(Status)) error
}

// Handle identifies a subscription.
type Handle string

type subscriber struct {
	handle Handle
	fn     func(Status)
}

// Reporter tracks the current headphone status and fans out transitions to
// subscribers.
type Reporter struct {
	platform   Platform
	dispatcher Dispatcher
	log        zerolog.Logger

	// emitMu serializes Observe so transitions are dispatched in the order
	// they were detected.
	emitMu sync.Mutex

	mu      sync.RWMutex
	current Status
	subs    map[Handle]*subscriber
	order   []Handle
	closed  bool

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithDispatcher sets where subscriber callbacks run.
func WithDispatcher(d Dispatcher) ReporterOption {
	return func(r *Reporter) { r.dispatcher = d }
}

// WithLogger sets the reporter's logger.
func WithLogger(l zerolog.Logger) ReporterOption {
	return func(r *Reporter) { r.log = l }
}

// WithInitialStatus sets the status held before the first successful query
// or event.
func WithInitialStatus(st Status) ReporterOption {
	return func(r *Reporter) { r.current = st }
}

// NewReporter creates a reporter over p. A nil platform makes every query
// report the unknown status.
func NewReporter(p Platform, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		platform: p,
		log:      zerolog.Nop(),
		current:  UnknownStatus(),
		subs:     make(map[Handle]*subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dispatcher == nil {
		r.dispatcher = newSerialQueue()
	}
	return r
}

// CurrentStatus queries the platform. It never fails: an unavailable
// platform yields the unknown status. A successful answer that differs from
// the last observed status is published as a transition; a failed query
// leaves the observed status alone.
//
// With an inline dispatcher it must not be called from a subscriber
// callback.
func (r *Reporter) CurrentStatus(ctx context.Context) Status {
	if r.platform == nil {
		return UnknownStatus()
	}
	st, err := r.platform.Query(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("platform query unavailable")
		return UnknownStatus()
	}
	r.Observe(st)
	return st
}

// Last returns the most recently observed status without querying.
func (r *Reporter) Last() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Subscribe registers fn for every later transition. After Close the
// returned handle is inert.
func (r *Reporter) Subscribe(fn func(Status)) Handle {
	h := Handle(uuid.NewString())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || fn == nil {
		return h
	}
	r.subs[h] = &subscriber{handle: h, fn: fn}
	r.order = append(r.order, h)
	r.log.Debug().Str("handle", string(h)).Int("subscribers", len(r.subs)).Msg("subscribed")
	return h
}

// Unsubscribe removes the subscription for h. Unknown or already removed
// handles are ignored.
func (r *Reporter) Unsubscribe(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[h]; !ok {
		return
	}
	delete(r.subs, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Debug().Str("handle", string(h)).Int("subscribers", len(r.subs)).Msg("unsubscribed")
}

// Subscribers returns the number of live subscriptions.
func (r *Reporter) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Observe records a status reported by the platform. A status different from
// the current one is a transition and is delivered to every subscriber.
func (r *Reporter) Observe(st Status) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if r.closed || st == r.current {
		r.mu.Unlock()
		return
	}
	prev := r.current
	r.current = st
	targets := make([]*subscriber, 0, len(r.order))
	for _, h := range r.order {
		targets = append(targets, r.subs[h])
	}
	r.mu.Unlock()

	r.log.Info().
		Str("from", string(prev.State)).
		Str("to", string(st.State)).
		Bool("audio_jack", st.AudioJack).
		Bool("bluetooth", st.Bluetooth).
		Msg("headphone status changed")

	for _, s := range targets {
		s := s
		r.dispatcher.Dispatch(func() { r.deliver(s, st) })
	}
}

func (r *Reporter) deliver(s *subscriber, st Status) {
	r.mu.RLock()
	live := r.subs[s.handle] == s
	r.mu.RUnlock()
	if !live {
		return
	}
	s.fn(st)
}

// Start begins watching the platform. Calling it while already watching is a
// no-op.
func (r *Reporter) Start(ctx context.Context) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	if r.watchCancel != nil {
		r.log.Debug().Msg("platform watch already running")
		return
	}
	if r.platform == nil {
		r.log.Warn().Msg("no platform available, status stays unknown")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.watchCancel = cancel
	r.watchDone = done

	r.CurrentStatus(ctx)

	go func() {
		defer close(done)
		if err := r.platform.Watch(ctx, r.Observe); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("platform watch stopped")
		}
	}()
	r.log.Info().Msg("watching platform for headphone changes")
}

// Stop ends the platform watch started by Start. Safe to call when not
// watching.
func (r *Reporter) Stop() {
	r.watchMu.Lock()
	cancel, done := r.watchCancel, r.watchDone
	r.watchCancel, r.watchDone = nil, nil
	r.watchMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info().Msg("stopped watching platform")
}

// Close stops watching, drops every subscription and shuts the dispatcher.
func (r *Reporter) Close() {
	r.Stop()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.subs = make(map[Handle]*subscriber)
	r.order = nil
	r.mu.Unlock()

	r.dispatcher.Close()
}
