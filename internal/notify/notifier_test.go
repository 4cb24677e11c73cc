package notify

import (
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	photos   [][]byte
	captions []string
}

func (r *recordingSender) SendMessage(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func (r *recordingSender) SendPhoto(_ context.Context, photo []byte, caption string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos = append(r.photos, photo)
	r.captions = append(r.captions, caption)
	return nil
}

func (r *recordingSender) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages), len(r.photos)
}

func alertEvent(annotated bool) *pipeline.Event {
	rep := &pipeline.Report{
		Log:       []string{"> TARGET LOCKED | CONF=0.91"},
		Survivors: 1,
		Threat:    pipeline.ThreatMedium,
		Radar:     pipeline.RadarAlert,
		Alert:     true,
	}
	if annotated {
		rep.Annotated = imaging.New(32, 32, color.NRGBA{G: 255, A: 255})
	}
	return pipeline.NewEvent(mode.Live, rep)
}

func TestNotifierSendsPhotoForAlert(t *testing.T) {
	s := &recordingSender{}
	n := New(s, 0)

	n.OnReport(alertEvent(true))
	n.Close()

	msgs, photos := s.counts()
	assert.Zero(t, msgs)
	require.Equal(t, 1, photos)
	assert.Equal(t, []byte{0xff, 0xd8}, s.photos[0][:2])
	assert.Contains(t, s.captions[0], "Survivors: 1")
	assert.Contains(t, s.captions[0], "&gt; TARGET LOCKED | CONF=0.91")
}

func TestNotifierIgnoresQuietReports(t *testing.T) {
	s := &recordingSender{}
	n := New(s, 0)

	n.OnReport(pipeline.NewEvent(mode.Upload, pipeline.NoSignalReport()))
	n.OnReport(nil)
	n.Close()

	msgs, photos := s.counts()
	assert.Zero(t, msgs+photos)
}

func TestNotifierCooldown(t *testing.T) {
	s := &recordingSender{}
	n := New(s, time.Minute)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := base
	n.now = func() time.Time { return clock }

	n.OnReport(alertEvent(false))
	require.Eventually(t, func() bool { m, _ := s.counts(); return m == 1 }, time.Second, 5*time.Millisecond)

	clock = base.Add(30 * time.Second)
	n.OnReport(alertEvent(false))

	clock = base.Add(61 * time.Second)
	n.OnReport(alertEvent(false))
	n.Close()

	msgs, _ := s.counts()
	assert.Equal(t, 2, msgs)
}

func TestNotifierDroppedAlertKeepsCooldownOpen(t *testing.T) {
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	// no delivery loop, so the single queue slot stays occupied
	n := &Notifier{
		sender:   &recordingSender{},
		cooldown: time.Minute,
		now:      func() time.Time { return clock },
		queue:    make(chan alert, 1),
		log:      logging.Component("notify"),
	}
	n.queue <- alert{event: alertEvent(false)}

	n.OnReport(alertEvent(false))
	assert.True(t, n.lastSent.IsZero(), "a dropped alert must not start the cooldown")

	<-n.queue
	clock = clock.Add(time.Second)
	next := alertEvent(true)
	n.OnReport(next)

	require.Len(t, n.queue, 1)
	assert.Equal(t, next.ID, (<-n.queue).event.ID)
	assert.Equal(t, clock, n.lastSent)
}

func TestCaption(t *testing.T) {
	ev := alertEvent(false)
	c := Caption(ev)
	assert.Contains(t, c, "<b>SURVIVOR ALERT</b>")
	assert.Contains(t, c, "Threat: MEDIUM")
	assert.Contains(t, c, "Source: "+mode.LiveLabel)
}
