package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterHumansKeepsOrderAndSynonyms(t *testing.T) {
	in := []Detection{
		{Class: "car", Confidence: 0.9},
		{Class: "Person", Confidence: 0.8},
		{Class: "dog", Confidence: 0.7},
		{Class: "HUMAN", Confidence: 0.6},
		{Class: "person", Confidence: 0.5},
		{Class: "personal-watercraft", Confidence: 0.5},
	}

	out := FilterHumans(in)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{0.8, 0.6, 0.5}, []float32{out[0].Confidence, out[1].Confidence, out[2].Confidence})
}

func TestSurvivorCountMatchesHumanLabels(t *testing.T) {
	labels := []string{"person", "car", "human", "PERSON", "truck", "Human", "bicycle"}
	for n := 0; n <= len(labels); n++ {
		dets := make([]Detection, 0, n)
		want := 0
		for _, l := range labels[:n] {
			dets = append(dets, Detection{Class: l, Confidence: 0.5})
			if l == "person" || l == "human" || l == "PERSON" || l == "Human" {
				want++
			}
		}
		assert.Len(t, FilterHumans(dets), want, "first %d labels", n)
	}
}

func TestFilterHumansEmpty(t *testing.T) {
	assert.Empty(t, FilterHumans(nil))
}

func TestValidateRejectsMalformedDetections(t *testing.T) {
	cases := map[string]Detection{
		"confidence above one": person(1.2, 0, 0, 10, 10),
		"negative confidence":  person(-0.1, 0, 0, 10, 10),
		"nan confidence":       person(float32(math.NaN()), 0, 0, 10, 10),
		"inverted x":           person(0.5, 20, 0, 10, 10),
		"inverted y":           person(0.5, 0, 20, 10, 10),
	}
	for name, d := range cases {
		err := Validate([]Detection{person(0.5, 0, 0, 5, 5), d})
		var integrity *DataIntegrityError
		require.ErrorAs(t, err, &integrity, name)
		assert.Equal(t, 1, integrity.Index, name)
		assert.ErrorIs(t, err, ErrDataIntegrity, name)
	}

	assert.NoError(t, Validate([]Detection{person(0, 3, 3, 3, 3), person(1, 0, 0, 1, 1)}))
}
