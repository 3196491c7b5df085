package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"atelier/internal/model"
)

// Type names a booking lifecycle event.
type Type string

const (
	BookingCreated        Type = "booking.created"
	BookingStatusChanged  Type = "booking.status_changed"
	BookingPaymentChanged Type = "booking.payment_changed"
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrBusClosed = errors.New("event bus closed")
)

// Event carries the booking as it is after the change.
type Event struct {
	Type    Type
	Booking model.Booking
	// PreviousStatus is set for status changes.
	PreviousStatus model.BookingStatus
	// PreviousPayment is set for payment changes.
	PreviousPayment model.PaymentStatus
	CreatedAt       time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

type subscriber struct {
	handler Handler
	// queue is nil when the handler runs in the publishing goroutine.
	queue chan Event
}

// EventBus fans events out to handlers. A bus from NewEventBus runs handlers
// in the publishing goroutine; one from NewAsyncEventBus gives every
// subscriber its own worker, so Publish never waits on a handler.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[Type][]*subscriber
	subs     []*subscriber
	onError  func(Event, error)
	buffer   int
	closed   bool
	wg       sync.WaitGroup
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[Type][]*subscriber)}
}

// NewAsyncEventBus queues up to buffer events per subscriber. Each subscriber
// sees events in publish order. Events that do not fit are dropped and
// reported to OnError as ErrQueueFull.
func NewAsyncEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 1
	}
	b := NewEventBus()
	b.buffer = buffer
	return b
}

// OnError receives handler failures, including recovered panics.
func (b *EventBus) OnError(fn func(Event, error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// Subscribe registers h for each of types.
func (b *EventBus) Subscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	sub := &subscriber{handler: h}
	if b.buffer > 0 {
		sub.queue = make(chan Event, b.buffer)
		b.wg.Add(1)
		go b.work(sub)
	}
	b.subs = append(b.subs, sub)
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], sub)
	}
}

// Publish delivers the event to every handler for its type in subscription
// order. A failing handler does not keep the others from running.
func (b *EventBus) Publish(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var inline []*subscriber
	var failed []error

	b.mu.RLock()
	onError := b.onError
	if b.closed {
		failed = append(failed, ErrBusClosed)
	} else {
		for _, sub := range b.handlers[e.Type] {
			if sub.queue == nil {
				inline = append(inline, sub)
				continue
			}
			select {
			case sub.queue <- e:
			default:
				failed = append(failed, ErrQueueFull)
			}
		}
	}
	b.mu.RUnlock()

	for _, err := range failed {
		if onError != nil {
			onError(e, err)
		}
	}
	for _, sub := range inline {
		b.deliver(sub.handler, e)
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		if sub.queue != nil {
			close(sub.queue)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *EventBus) work(sub *subscriber) {
	defer b.wg.Done()
	for e := range sub.queue {
		b.deliver(sub.handler, e)
	}
}

func (b *EventBus) deliver(h Handler, e Event) {
	err := dispatch(h, e)
	if err == nil {
		return
	}
	b.mu.RLock()
	onError := b.onError
	b.mu.RUnlock()
	if onError != nil {
		onError(e, err)
	}
}

func dispatch(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panic: %v", e.Type, r)
		}
	}()
	return h(e)
}
