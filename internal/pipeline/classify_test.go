package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyThreat(t *testing.T) {
	assert.Equal(t, ThreatLow, ClassifyThreat(0))
	assert.Equal(t, ThreatMedium, ClassifyThreat(1))
	assert.Equal(t, ThreatMedium, ClassifyThreat(2))
	assert.Equal(t, ThreatHigh, ClassifyThreat(3))
	for n := 4; n < 50; n++ {
		assert.Equal(t, ThreatHigh, ClassifyThreat(n), n)
	}
	assert.Equal(t, ThreatLow, ClassifyThreat(-1))
}

func TestBuildEventLog(t *testing.T) {
	assert.Equal(t, []string{"> AREA CLEAR"}, BuildEventLog(nil))

	lines := BuildEventLog([]Detection{person(0.92, 0, 0, 1, 1), person(0.3, 0, 0, 1, 1)})
	assert.Equal(t, []string{"> TARGET LOCKED | CONF=0.92", "> TARGET LOCKED | CONF=0.30"}, lines)
	assert.NotContains(t, lines, AreaClearLog)
}

func TestAreaClearIffNoSurvivors(t *testing.T) {
	for n := 0; n < 5; n++ {
		humans := make([]Detection, n)
		for i := range humans {
			humans[i] = person(0.5, 0, 0, 1, 1)
		}
		lines := BuildEventLog(humans)
		clear := len(lines) == 1 && lines[0] == AreaClearLog
		assert.Equal(t, n == 0, clear, n)
	}
}

func TestComputeFPS(t *testing.T) {
	assert.InDelta(t, 20.0, ComputeFPS(50*time.Millisecond), 1e-9)
	assert.InDelta(t, 1000.0, ComputeFPS(time.Millisecond), 1e-9)
	assert.InDelta(t, 0.5, ComputeFPS(2*time.Second), 1e-9)
	assert.Equal(t, 1000.0, ComputeFPS(0))
	assert.Equal(t, 1000.0, ComputeFPS(500*time.Microsecond))
	assert.Equal(t, 1000.0, ComputeFPS(-time.Second))
}

func TestEmitAlert(t *testing.T) {
	radar, alert := EmitAlert(0)
	assert.Equal(t, RadarNormal, radar)
	assert.False(t, alert)

	for n := 1; n < 5; n++ {
		radar, alert = EmitAlert(n)
		assert.Equal(t, RadarAlert, radar)
		assert.True(t, alert)
	}
}
