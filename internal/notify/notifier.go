// Package notify pushes radar alerts to the operator's Telegram chat.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/pipeline"
)

// Sender delivers an alert; *telegram.Bot satisfies it
type Sender interface {
	SendMessage(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, photo []byte, caption string) error
}

type alert struct {
	event *pipeline.Event
}

// Notifier sends one message per alerting report, at most once per cooldown.
// Delivery runs on its own goroutine; an alert arriving while one is being
// sent is dropped rather than queued.
type Notifier struct {
	sender   Sender
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent time.Time

	queue chan alert
	done  chan struct{}
	once  sync.Once

	log zerolog.Logger
}

// New starts a notifier. cooldown <= 0 disables rate limiting.
func New(sender Sender, cooldown time.Duration) *Notifier {
	n := &Notifier{
		sender:   sender,
		cooldown: cooldown,
		timeout:  20 * time.Second,
		now:      time.Now,
		queue:    make(chan alert, 1),
		done:     make(chan struct{}),
		log:      logging.Component("notify"),
	}
	go n.loop()
	return n
}

// OnReport implements pipeline.ReportHandler
func (n *Notifier) OnReport(event *pipeline.Event) {
	if event == nil || event.Report == nil || !event.Report.Alert {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if n.cooldown > 0 && !n.lastSent.IsZero() && now.Sub(n.lastSent) < n.cooldown {
		return
	}

	// the cooldown starts only for an alert that was actually queued
	select {
	case n.queue <- alert{event: event}:
		n.lastSent = now
	default:
		n.log.Debug().Str("event", event.ID).Msg("notifier busy, alert dropped")
	}
}

// Close stops the delivery goroutine after the pending alert is sent
func (n *Notifier) Close() {
	n.once.Do(func() {
		close(n.queue)
		<-n.done
	})
}

func (n *Notifier) loop() {
	defer close(n.done)
	for a := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.deliver(ctx, a.event); err != nil {
			n.log.Warn().Err(err).Str("event", a.event.ID).Msg("alert delivery failed")
		} else {
			n.log.Info().Str("event", a.event.ID).Int("survivors", a.event.Report.Survivors).Msg("alert delivered")
		}
		cancel()
	}
}

func (n *Notifier) deliver(ctx context.Context, event *pipeline.Event) error {
	caption := Caption(event)
	if event.Report.Annotated == nil {
		return n.sender.SendMessage(ctx, caption)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, event.Report.Annotated, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode alert frame: %w", err)
	}
	return n.sender.SendPhoto(ctx, buf.Bytes(), caption)
}

// Caption renders the HTML alert text
func Caption(event *pipeline.Event) string {
	rep := event.Report
	zoneName, _ := event.At.Zone()

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 <b>SURVIVOR ALERT</b>\n\n")
	fmt.Fprintf(&b, "👥 Survivors: %d\n", rep.Survivors)
	fmt.Fprintf(&b, "⚠️ Threat: %s\n", rep.Threat)
	fmt.Fprintf(&b, "📡 Source: %s\n", event.Source.Label())
	fmt.Fprintf(&b, "🕐 Time: %s %s\n", event.At.Format("2 Jan 2006, 15:04:05"), zoneName)
	if len(rep.Log) > 0 {
		fmt.Fprintf(&b, "\n<pre>%s</pre>", html.EscapeString(rep.LogText()))
	}
	return b.String()
}

// Ensure Notifier implements pipeline.ReportHandler
var _ pipeline.ReportHandler = (*Notifier)(nil)
