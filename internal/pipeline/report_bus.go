package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"aeroguardian/internal/mode"
)

// Event carries one report from a frame source to its consumers
type Event struct {
	ID     string    `json:"id"`
	Source mode.Mode `json:"source"`
	At     time.Time `json:"at"`
	Report *Report   `json:"report"`
}

// NewEvent stamps a report with an id, source and time
func NewEvent(source mode.Mode, report *Report) *Event {
	return &Event{
		ID:     uuid.NewString(),
		Source: source,
		At:     time.Now(),
		Report: report,
	}
}

// ReportBus provides pub/sub for pipeline reports
type ReportBus struct {
	subscribers map[*subscription]bool
	mu          sync.RWMutex
}

type subscription struct {
	sourceFilter mode.Mode // Empty means receive every source
	channel      chan *Event
	handler      ReportHandler
}

// NewReportBus creates a new report bus
func NewReportBus() *ReportBus {
	return &ReportBus{
		subscribers: make(map[*subscription]bool),
	}
}

// Subscribe registers a handler for every report. Returns an unsubscribe function.
func (b *ReportBus) Subscribe(handler ReportHandler) func() {
	return b.add(&subscription{handler: handler})
}

// SubscribeSource registers a handler for reports from one frame source
func (b *ReportBus) SubscribeSource(source mode.Mode, handler ReportHandler) func() {
	return b.add(&subscription{sourceFilter: source, handler: handler})
}

// SubscribeChannel returns a buffered channel of reports and an unsubscribe function
func (b *ReportBus) SubscribeChannel(bufferSize int) (<-chan *Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *Event, bufferSize)
	sub := &subscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *ReportBus) add(sub *subscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// Publish sends an event to all subscribers. Handlers run synchronously so
// consumers observe reports in publish order; a full channel drops the event.
func (b *ReportBus) Publish(event *Event) {
	if event == nil || event.Report == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.sourceFilter != "" && sub.sourceFilter != event.Source {
			continue
		}

		if sub.handler != nil {
			sub.handler.OnReport(event)
		} else if sub.channel != nil {
			select {
			case sub.channel <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *ReportBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone and closes channels
func (b *ReportBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
