// notification_bus.go: Change notifications for registry and loader activity
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	timecache "github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// EventType identifies a change notification.
type EventType string

const (
	// EventRegister fires once per interface when an app is registered.
	EventRegister EventType = "register"
	// EventUnregister fires once per interface when an app is removed.
	EventUnregister EventType = "unregister"
	// EventLoadApps fires after a full load pass.
	EventLoadApps EventType = "load_apps"
	// EventExtensionLoaded fires after a package loads.
	EventExtensionLoaded EventType = "extension_loaded"
	// EventExtensionUnloaded fires after a package is unloaded.
	EventExtensionUnloaded EventType = "extension_unloaded"
	// EventExtensionFailed fires when a package is skipped.
	EventExtensionFailed EventType = "extension_failed"
	// EventProviderPublished fires when a plugin takes interface slots.
	EventProviderPublished EventType = "provider_published"
	// EventProviderWithdrawn fires when a plugin leaves its slots.
	EventProviderWithdrawn EventType = "provider_withdrawn"
	// EventConfigChanged fires when the runtime configuration is reloaded.
	EventConfigChanged EventType = "config_changed"
)

// Event is a change notification. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	App       *AppInfo               `json:"-"`
	Interface string                 `json:"interface,omitempty"`
	Extension string                 `json:"extension,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	Error     error                  `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Observer receives change notifications.
type Observer interface {
	Notify(event Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event Event) error

// Notify implements Observer.
func (f ObserverFunc) Notify(event Event) error { return f(event) }

// Subscription ties an observer to a bus until Unsubscribe is called or the
// bus is invalidated. Hosts must unsubscribe observers before discarding them.
type Subscription struct {
	id         uuid.UUID
	generation uint64
	observer   Observer
	bus        *NotificationBus
	active     atomic.Bool
}

// ID returns the subscription id.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load() && s.generation == s.bus.generation.Load()
}

// Unsubscribe detaches the observer. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.active.CompareAndSwap(true, false) {
		s.bus.remove(s)
	}
}

// NotificationBus delivers events synchronously to subscribers in
// subscription order.
type NotificationBus struct {
	mu         sync.RWMutex
	subs       []*Subscription
	generation atomic.Uint64
	logger     Logger
	published  atomic.Int64
}

// NewNotificationBus creates an empty bus.
func NewNotificationBus(logger any) *NotificationBus {
	return &NotificationBus{logger: NewLogger(logger)}
}

// Subscribe registers observer for all future events of the current generation.
func (b *NotificationBus) Subscribe(observer Observer) *Subscription {
	s := &Subscription{
		id:         uuid.New(),
		generation: b.generation.Load(),
		observer:   observer,
		bus:        b,
	}
	s.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	b.logger.Debug("Observer subscribed", "subscription", s.id.String())
	return s
}

// SubscribeFunc is Subscribe for a plain function.
func (b *NotificationBus) SubscribeFunc(fn func(event Event) error) *Subscription {
	return b.Subscribe(ObserverFunc(fn))
}

// Invalidate starts a new generation. Every existing subscription stops
// receiving events and is pruned on the next Publish.
func (b *NotificationBus) Invalidate() {
	gen := b.generation.Add(1)
	b.logger.Debug("Notification bus invalidated", "generation", gen)
}

// Len returns the number of live subscriptions.
func (b *NotificationBus) Len() int {
	gen := b.generation.Load()
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.generation == gen && s.Active() {
			n++
		}
	}
	return n
}

// Publish delivers event to every live observer and returns how many
// observers handled it without error. A failing or panicking observer is
// logged and does not stop delivery to the others.
func (b *NotificationBus) Publish(event Event) int {
	if event.Timestamp.IsZero() {
		event.Timestamp = timecache.CachedTime()
	}
	b.published.Add(1)

	delivered := 0
	for _, s := range b.snapshot() {
		if !s.active.Load() {
			continue
		}
		if err := b.deliver(s, event); err != nil {
			b.logger.Warn("Observer failed to handle event",
				"subscription", s.id.String(),
				"event", string(event.Type),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Published returns the number of events published so far.
func (b *NotificationBus) Published() int64 {
	return b.published.Load()
}

// deliver reports a panicking observer as errObserverPanicked after logging it.
func (b *NotificationBus) deliver(s *Subscription, event Event) (err error) {
	err = errObserverPanicked
	defer withStackRecover(b.logger,
		"subscription", s.id.String(),
		"event", string(event.Type))()
	return s.observer.Notify(event)
}

var errObserverPanicked = stderrors.New("observer panicked")

// snapshot copies the live subscriptions and prunes stale generations.
func (b *NotificationBus) snapshot() []*Subscription {
	gen := b.generation.Load()

	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.subs[:0]
	for _, s := range b.subs {
		if s.generation == gen && s.active.Load() {
			live = append(live, s)
		} else {
			s.active.Store(false)
		}
	}
	for i := len(live); i < len(b.subs); i++ {
		b.subs[i] = nil
	}
	b.subs = live
	return append([]*Subscription(nil), live...)
}

func (b *NotificationBus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
